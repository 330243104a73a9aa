package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"leadflow/internal/classifier"
	"leadflow/internal/config"
	"leadflow/internal/database"
	apperrors "leadflow/internal/errors"
	"leadflow/internal/features"
	"leadflow/internal/kv"
	"leadflow/internal/metrics"
	"leadflow/internal/models"
	"leadflow/internal/retry"
	"leadflow/internal/service"
	"leadflow/pkg/circuitbreaker"
)

// application holds the wired pipeline components.
type application struct {
	cfg        *models.Config
	logger     *logrus.Logger
	db         *database.Database
	store      kv.Store
	flags      *features.FlagManager
	pipeline   *metrics.Pipeline
	classifier *classifier.Service
	ingestion  *service.Ingestion
	notifier   *service.NotificationDispatcher
	scheduler  *service.Scheduler
}

func newApplication(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*application, error) {
	backoff := retry.FromModel(cfg.Retry)

	db, err := openDatabase(ctx, cfg, backoff, logger)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Redis, backoff, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	flags := features.NewFlagManager()
	flags.InitializeDefaults()
	if err := flags.LoadFromConfig(features.FromConfig(cfg)); err != nil {
		_ = store.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to load feature flags: %w", err)
	}
	flags.LoadFromEnvironment()

	app := &application{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		store:    store,
		flags:    flags,
		pipeline: metrics.NewPipeline(),
	}
	app.wire()
	return app, nil
}

func (a *application) wire() {
	cfg, logger := a.cfg, a.logger

	var ai classifier.Classifier
	if cfg.AIConfigured() {
		ai = classifier.NewAI(cfg.AI)
	}
	breaker := circuitbreaker.New("ai-classifier", cfg.AI.BreakerFailures,
		time.Duration(cfg.AI.BreakerResetSec)*time.Second, circuitbreaker.WithLogger(logger))
	a.classifier = classifier.NewService(ai, logger,
		classifier.WithCache(a.store, time.Duration(cfg.AI.CacheTTLSec)*time.Second),
		classifier.WithBreaker(breaker),
		classifier.WithMetrics(a.pipeline),
	)

	gate := service.NewDebounceGate(a.store, time.Duration(cfg.Automation.DebounceMs)*time.Millisecond, cfg.Automation.DeferredQueueMaxSize)
	a.notifier = service.NewNotificationDispatcher(a.db, a.store, service.NotificationConfig{
		BufferSize: cfg.Notifications.BufferSize,
		BufferTTL:  time.Duration(cfg.Notifications.BufferTTLHours) * time.Hour,
		Expiry:     time.Duration(cfg.Notifications.ExpiryDays) * 24 * time.Hour,
	}, a.pipeline, logger)

	if cfg.WhatsApp.WebhookSecret == "" && !config.IsProduction() {
		logger.Warn("No webhook secret configured, accepting unsigned deliveries outside production")
	}
	a.ingestion = service.NewIngestion(service.IngestionConfig{
		WebhookSecret:     cfg.WhatsApp.WebhookSecret,
		RequireSignature:  config.IsProduction(),
		CountryCode:       cfg.WhatsApp.DefaultCountry,
		ProcessingTimeout: time.Duration(cfg.Server.ProcessingTimeoutSec) * time.Second,
	}, service.IngestionDeps{
		Gate:       gate,
		Resolver:   service.NewContextResolver(a.db, cfg.Automation.ContextMessages, logger),
		Classifier: a.classifier,
		Leads:      service.NewLeadMaterializer(a.db, cfg.Automation.DefaultSellerID, a.pipeline, logger),
		Notifier:   a.notifier,
		Audit:      a.db,
		Flags:      a.flags,
		Metrics:    a.pipeline,
		Logger:     logger,
	})

	a.scheduler = service.NewScheduler(service.SchedulerConfig{
		RetentionDays:   cfg.RetentionDays,
		FlushInterval:   time.Duration(cfg.Automation.FlushIntervalSec) * time.Second,
		CleanupInterval: time.Duration(cfg.Server.CleanupIntervalHours) * time.Hour,
	}, a.ingestion, gate, a.notifier, a.db, a.flags, a.pipeline, logger)
}

// applyRuntimeConfig takes the settings that can change without a restart
// from a reloaded configuration.
func (a *application) applyRuntimeConfig(cfg *models.Config) {
	if err := a.flags.LoadFromConfig(features.FromConfig(cfg)); err != nil {
		a.logger.WithError(err).Error("Failed to apply reloaded feature flags")
		return
	}
	a.flags.LoadFromEnvironment()

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil && a.logger.GetLevel() != logrus.DebugLevel {
		a.logger.SetLevel(level)
	}
	a.logger.WithFields(logrus.Fields{
		"auto_create_leads": a.flags.IsEnabled(features.FlagAutoCreateLeads),
		"seller_alerts":     a.flags.IsEnabled(features.FlagSellerAlerts),
	}).Info("Runtime configuration applied")
}

func (a *application) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = err
	}
	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func openDatabase(ctx context.Context, cfg *models.Config, backoff retry.BackoffConfig, logger logrus.FieldLogger) (*database.Database, error) {
	var opts []database.Option
	if cfg.Database.EncryptionSecret != "" {
		opts = append(opts, database.WithEncryptionSecret(cfg.Database.EncryptionSecret))
	}

	var db *database.Database
	err := retry.NewBackoff(backoff, retry.WithLogger(logger, "database_open")).Retry(ctx, func() error {
		var openErr error
		db, openErr = database.New(ctx, cfg.Database.Path, opts...)
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	return db, nil
}

// openStore connects to Redis when a URL is configured and falls back to the
// in-process store otherwise.
func openStore(ctx context.Context, cfg models.RedisConfig, backoff retry.BackoffConfig, logger logrus.FieldLogger) (kv.Store, error) {
	if cfg.URL == "" {
		logger.Info("No Redis URL configured, using in-memory key-value store")
		return kv.NewMemoryStore(), nil
	}

	store, err := kv.NewRedisStore(cfg)
	if err != nil {
		return nil, err
	}
	err = retry.NewBackoff(backoff, retry.WithLogger(logger, "redis_ping")).RetryTransient(ctx, func() error {
		if pingErr := store.Ping(ctx); pingErr != nil {
			return apperrors.NewCacheError("ping", pingErr)
		}
		return nil
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Connected to Redis key-value store")
	return store, nil
}

package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"leadflow/internal/constants"
	"leadflow/internal/features"
	"leadflow/internal/metrics"
	"leadflow/internal/models"
	"leadflow/internal/tracing"
)

// DeferredProcessor runs a merged deferred message through the pipeline.
type DeferredProcessor interface {
	ProcessDeferred(ctx context.Context, msg *models.IncomingMessage) (*IngestionResult, error)
}

// SchedulerConfig sets the periodic job intervals.
type SchedulerConfig struct {
	RetentionDays   int
	FlushInterval   time.Duration
	CleanupInterval time.Duration
}

// Scheduler flushes deferred queues of expired debounce gates and purges
// expired notifications and old audit records.
type Scheduler struct {
	cfg       SchedulerConfig
	processor DeferredProcessor
	gate      *DebounceGate
	notifier  *NotificationDispatcher
	audit     AuditStore
	flags     FlagChecker
	metrics   *metrics.Pipeline
	logger    logrus.FieldLogger
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewScheduler(cfg SchedulerConfig, processor DeferredProcessor, gate *DebounceGate, notifier *NotificationDispatcher, audit AuditStore, flags FlagChecker, m *metrics.Pipeline, logger logrus.FieldLogger) *Scheduler {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Duration(constants.DefaultFlushIntervalSec) * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Duration(constants.DefaultCleanupIntervalHours) * time.Hour
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = constants.DefaultRetentionDays
	}
	if flags == nil {
		fm := features.NewFlagManager()
		fm.InitializeDefaults()
		flags = fm
	}
	return &Scheduler{
		cfg:       cfg,
		processor: processor,
		gate:      gate,
		notifier:  notifier,
		audit:     audit,
		flags:     flags,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	flushTicker := time.NewTicker(s.cfg.FlushInterval)
	defer flushTicker.Stop()
	cleanupTicker := time.NewTicker(s.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	s.logger.WithFields(logrus.Fields{
		"flushInterval":   s.cfg.FlushInterval.String(),
		"cleanupInterval": s.cfg.CleanupInterval.String(),
		"retentionDays":   s.cfg.RetentionDays,
	}).Info("Starting scheduler")

	s.runCleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-flushTicker.C:
			s.FlushDeferred(ctx)
		case <-cleanupTicker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// FlushDeferred merges and processes the queue of every sender whose gate
// has expired. It returns the number of merged passes run.
func (s *Scheduler) FlushDeferred(ctx context.Context) int {
	if s.gate == nil || !s.flags.IsEnabled(features.FlagDeferredFlush) {
		return 0
	}

	senders, err := s.gate.Pending(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to list deferred queues")
		return 0
	}

	flushed := 0
	for _, sender := range senders {
		ctx := tracing.WithFullTracing(ctx)
		payloads, err := s.gate.Drain(ctx, sender)
		if err != nil {
			s.logger.WithError(err).WithField(LogFieldSender, SanitizePhoneNumber(ctx, sender)).Warn("Failed to drain deferred queue")
			continue
		}
		if len(payloads) == 0 {
			continue
		}

		merged := MergeDeferred(payloads, s.logger)
		if merged == nil {
			continue
		}
		if _, err := s.processor.ProcessDeferred(ctx, merged); err != nil {
			s.logger.WithError(err).WithFields(messageFields(ctx, merged)).Error("Failed to process merged deferred messages")
		}
		s.metrics.ObserveFlush()
		flushed++
		s.logger.WithFields(messageFields(ctx, merged)).WithField(LogFieldCount, len(payloads)).Debug("Processed merged deferred messages")
	}
	return flushed
}

// MergeDeferred folds queued messages into one: texts are joined in arrival
// order and the most recent message supplies ids and metadata. Undecodable
// entries are dropped.
func MergeDeferred(payloads [][]byte, logger logrus.FieldLogger) *models.IncomingMessage {
	var (
		merged *models.IncomingMessage
		texts  []string
	)
	for _, data := range payloads {
		var msg models.IncomingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.WithError(err).Warn("Dropping undecodable deferred message")
			continue
		}
		if text, ok := msg.Content(); ok {
			texts = append(texts, text)
		}
		latest := msg
		merged = &latest
	}
	if merged == nil {
		return nil
	}

	merged.MediaTranscription = nil
	merged.Text = nil
	if len(texts) > 0 {
		merged.Text = models.StringPtr(strings.Join(texts, "\n"))
	}
	return merged
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	s.logger.WithField("retentionDays", s.cfg.RetentionDays).Info("Running scheduled cleanup")

	if s.notifier != nil {
		n, err := s.notifier.PurgeExpired(ctx)
		if err != nil {
			s.logger.WithError(err).Error("Failed to purge expired notifications")
		} else {
			s.logger.WithField(LogFieldCount, n).Info("Purged expired notifications")
		}
	}

	if s.audit != nil {
		cutoff := s.now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
		n, err := s.audit.DeleteEventsBefore(ctx, cutoff)
		if err != nil {
			s.logger.WithError(err).Error("Failed to delete old automation events")
		} else {
			s.logger.WithField(LogFieldCount, n).Info("Deleted old automation events")
		}
	}
}

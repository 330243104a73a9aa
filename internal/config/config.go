package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"leadflow/internal/constants"
	"leadflow/internal/models"
	"leadflow/internal/security"
)

// Environment variables read on top of the JSON file.
const (
	EnvEnvironment      = "LEADFLOW_ENV"
	EnvWebhookSecret    = "LEADFLOW_WEBHOOK_SECRET"
	EnvPort             = "LEADFLOW_PORT"
	EnvLogLevel         = "LEADFLOW_LOG_LEVEL"
	EnvEnableEncryption = "LEADFLOW_ENABLE_ENCRYPTION"
	EnvEncryptionSecret = "LEADFLOW_ENCRYPTION_SECRET"
	EnvAIModel          = "LEADFLOW_AI_MODEL"
	EnvAIBaseURL        = "LEADFLOW_AI_BASE_URL"
	EnvOpenAIKey        = "OPENAI_API_KEY"
	EnvRedisURL         = "REDIS_URL"
	EnvDBPath           = "DB_PATH"
	EnvAutoCreateLeads  = "AUTO_CREATE_LEADS"
	EnvDefaultSellerID  = "DEFAULT_SELLER_ID"
)

var (
	ErrMissingDBPath = models.ConfigError{Message: "missing database path"}
)

// LoadDotEnv loads KEY=value files into the process environment. Missing
// files are skipped and variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// IsProduction reports whether LEADFLOW_ENV selects production.
func IsProduction() bool {
	return strings.EqualFold(os.Getenv(EnvEnvironment), "production")
}

// Defaults returns the configuration used for every key the file omits.
func Defaults() models.Config {
	return models.Config{
		Server: models.ServerConfig{
			Port:                 constants.DefaultServerPort,
			ReadTimeoutSec:       constants.DefaultServerReadTimeoutSec,
			WriteTimeoutSec:      constants.DefaultServerWriteTimeoutSec,
			IdleTimeoutSec:       constants.DefaultServerIdleTimeoutSec,
			MaxBodyBytes:         constants.DefaultMaxWebhookBodyBytes,
			ProcessingTimeoutSec: constants.DefaultProcessingTimeoutSec,
			CleanupIntervalHours: constants.DefaultCleanupIntervalHours,
			WebhookRateLimit:     constants.DefaultWebhookRateLimit,
		},
		WhatsApp: models.WhatsAppConfig{
			SignatureHeader: constants.SignatureHeader,
			DefaultCountry:  constants.DefaultCountryCode,
		},
		Redis: models.RedisConfig{
			KeyPrefix: "leadflow:",
			PoolSize:  10,
		},
		AI: models.AIConfig{
			Model:           constants.DefaultAIModel,
			Temperature:     constants.DefaultAITemperature,
			TimeoutSec:      constants.DefaultClassifierTimeoutSec,
			CacheTTLSec:     int(constants.DefaultClassificationTTL.Seconds()),
			BreakerFailures: constants.BreakerMaxFailures,
			BreakerResetSec: constants.BreakerResetTimeoutSec,
		},
		Automation: models.AutomationConfig{
			SellerAlerts:         true,
			DebounceMs:           int(constants.DefaultDebounceTTL.Milliseconds()),
			DeferredQueueMaxSize: constants.DefaultDeferredQueueMaxSize,
			FlushIntervalSec:     constants.DefaultFlushIntervalSec,
			ContextMessages:      constants.DefaultContextMessages,
		},
		Notifications: models.NotifyConfig{
			BufferSize:     constants.DefaultNotificationBufferSize,
			BufferTTLHours: int(constants.DefaultNotificationBufferTTL.Hours()),
			ExpiryDays:     constants.DefaultNotificationExpiryDays,
		},
		Retry: models.RetryConfig{
			InitialBackoffMs: constants.DefaultRetryBackoffMs,
			MaxBackoffMs:     constants.DefaultMaxBackoffMs,
			MaxAttempts:      constants.DefaultDatabaseRetryAttempts,
		},
		Tracing: models.TracingConfig{
			ServiceName:    "leadflow",
			ServiceVersion: "dev",
			Environment:    "development",
			OTLPEndpoint:   "http://localhost:4318/v1/traces",
			SampleRate:     0.1,
			UseStdout:      true,
		},
		LogLevel:      "info",
		RetentionDays: constants.DefaultRetentionDays,
	}
}

// LoadConfig reads the JSON file at path over Defaults and applies
// environment overrides. An empty path configures from the environment
// alone.
func LoadConfig(path string) (*models.Config, error) {
	config := Defaults()

	if path != "" {
		if err := security.ValidateFilePath(path); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(file, &config); err != nil {
			return nil, err
		}
	}

	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}
	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults replaces explicit zero values that would disable a component.
func applyDefaults(c *models.Config) {
	d := Defaults()
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}
	if c.Server.ProcessingTimeoutSec <= 0 {
		c.Server.ProcessingTimeoutSec = d.Server.ProcessingTimeoutSec
	}
	if c.Server.CleanupIntervalHours <= 0 {
		c.Server.CleanupIntervalHours = d.Server.CleanupIntervalHours
	}
	if c.WhatsApp.SignatureHeader == "" {
		c.WhatsApp.SignatureHeader = d.WhatsApp.SignatureHeader
	}
	if c.WhatsApp.DefaultCountry == "" {
		c.WhatsApp.DefaultCountry = d.WhatsApp.DefaultCountry
	}
	if c.AI.Model == "" {
		c.AI.Model = d.AI.Model
	}
	if c.Automation.DebounceMs <= 0 {
		c.Automation.DebounceMs = d.Automation.DebounceMs
	}
	if c.Automation.DeferredQueueMaxSize <= 0 {
		c.Automation.DeferredQueueMaxSize = d.Automation.DeferredQueueMaxSize
	}
	if c.Automation.FlushIntervalSec <= 0 {
		c.Automation.FlushIntervalSec = d.Automation.FlushIntervalSec
	}
	if c.Notifications.BufferSize <= 0 {
		c.Notifications.BufferSize = d.Notifications.BufferSize
	}
	if c.Notifications.BufferTTLHours <= 0 {
		c.Notifications.BufferTTLHours = d.Notifications.BufferTTLHours
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = d.RetentionDays
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = d.Tracing.ServiceName
	}
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return models.ConfigError{Message: fmt.Sprintf("server port %d out of range", c.Server.Port)}
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return models.ConfigError{Message: "ai temperature must be between 0 and 2"}
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return models.ConfigError{Message: "tracing sample rate must be between 0 and 1"}
	}
	if c.Server.WebhookRateLimit < 0 {
		return models.ConfigError{Message: "webhook rate limit must not be negative"}
	}
	if c.Automation.DefaultSellerID < 0 {
		return models.ConfigError{Message: "default seller id must not be negative"}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid log level %q", c.LogLevel)}
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) error {
	if path := os.Getenv(EnvDBPath); path != "" {
		c.Database.Path = path
	}
	if url := os.Getenv(EnvRedisURL); url != "" {
		c.Redis.URL = url
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = strings.ToLower(level)
	}

	// SECURITY: secrets should be set via environment variables
	if secret := os.Getenv(EnvWebhookSecret); secret != "" {
		c.WhatsApp.WebhookSecret = secret
	}
	if key := os.Getenv(EnvOpenAIKey); key != "" {
		c.AI.APIKey = key
	}
	if model := os.Getenv(EnvAIModel); model != "" {
		c.AI.Model = model
	}
	if url := os.Getenv(EnvAIBaseURL); url != "" {
		c.AI.BaseURL = url
	}

	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid %s: %q", EnvPort, v)}
		}
		c.Server.Port = port
	}
	if v := os.Getenv(EnvAutoCreateLeads); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid %s: %q", EnvAutoCreateLeads, v)}
		}
		c.Automation.AutoCreateLeads = enabled
	}
	if v := os.Getenv(EnvDefaultSellerID); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid %s: %q", EnvDefaultSellerID, v)}
		}
		c.Automation.DefaultSellerID = id
	}

	if v := os.Getenv(EnvEnableEncryption); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid %s: %q", EnvEnableEncryption, v)}
		}
		if enabled {
			c.Database.EncryptionSecret = os.Getenv(EnvEncryptionSecret)
			if c.Database.EncryptionSecret == "" {
				return models.ConfigError{Message: fmt.Sprintf("%s is required when %s is true", EnvEncryptionSecret, EnvEnableEncryption)}
			}
		}
	}
	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if !IsProduction() {
		if c.WhatsApp.WebhookSecret == "" {
			fmt.Fprintf(os.Stderr, "WARNING: webhook secret not set. Set %s to verify gateway deliveries.\n", EnvWebhookSecret)
		}
		return nil
	}

	// In production, webhook secrets are mandatory
	if c.WhatsApp.WebhookSecret == "" {
		return models.ConfigError{Message: fmt.Sprintf("webhook secret is required in production (set %s environment variable)", EnvWebhookSecret)}
	}
	if len(c.WhatsApp.WebhookSecret) < constants.MinWebhookSecretLength {
		return models.ConfigError{Message: fmt.Sprintf("webhook secret must be at least %d characters long", constants.MinWebhookSecretLength)}
	}
	if c.LogLevel == "debug" || c.LogLevel == "trace" {
		return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
	}
	return nil
}

package models

// Config holds the application configuration
type Config struct {
	Server        ServerConfig     `json:"server"`
	WhatsApp      WhatsAppConfig   `json:"whatsapp"`
	Database      DatabaseConfig   `json:"database"`
	Redis         RedisConfig      `json:"redis"`
	AI            AIConfig         `json:"ai"`
	Automation    AutomationConfig `json:"automation"`
	Notifications NotifyConfig     `json:"notifications"`
	Retry         RetryConfig      `json:"retry"`
	Tracing       TracingConfig    `json:"tracing"`
	LogLevel      string           `json:"log_level"`
	RetentionDays int              `json:"retentionDays"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port                 int   `json:"port"`
	ReadTimeoutSec       int   `json:"readTimeoutSec"`
	WriteTimeoutSec      int   `json:"writeTimeoutSec"`
	IdleTimeoutSec       int   `json:"idleTimeoutSec"`
	MaxBodyBytes         int64 `json:"maxBodyBytes"`
	ProcessingTimeoutSec int   `json:"processingTimeoutSec"`
	CleanupIntervalHours int   `json:"cleanupIntervalHours"`
	// Webhook requests allowed per client IP per minute; 0 disables limiting.
	WebhookRateLimit int `json:"webhookRateLimit"`
}

// WhatsAppConfig holds gateway webhook settings
type WhatsAppConfig struct {
	WebhookSecret   string `json:"webhook_secret"`
	SignatureHeader string `json:"signatureHeader"`
	DefaultCountry  string `json:"defaultCountryCode"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
	// Set from LEADFLOW_ENCRYPTION_SECRET when LEADFLOW_ENABLE_ENCRYPTION=true
	EncryptionSecret string `json:"-"`
}

// RedisConfig selects the key-value backend. An empty URL uses the in-process store.
type RedisConfig struct {
	URL           string `json:"url"`
	KeyPrefix     string `json:"keyPrefix"`
	PoolSize      int    `json:"poolSize"`
	DialTimeoutMs int    `json:"dialTimeoutMs"`
}

// AIConfig configures the AI classifier. The classifier is considered configured
// only when APIKey is non-empty.
type AIConfig struct {
	APIKey          string  `json:"api_key"`
	BaseURL         string  `json:"base_url"`
	Model           string  `json:"model"`
	Temperature     float32 `json:"temperature"`
	TimeoutSec      int     `json:"timeoutSec"`
	CacheTTLSec     int     `json:"cacheTtlSec"`
	BreakerFailures uint32  `json:"breakerFailures"`
	BreakerResetSec int     `json:"breakerResetSec"`
}

// AutomationConfig controls the decision engine and debounce gate
type AutomationConfig struct {
	AutoCreateLeads      bool  `json:"autoCreateLeads"`
	SellerAlerts         bool  `json:"sellerAlerts"`
	DefaultSellerID      int64 `json:"defaultSellerId"`
	DebounceMs           int   `json:"debounceMs"`
	DeferredQueueMaxSize int   `json:"deferredQueueMaxSize"`
	FlushIntervalSec     int   `json:"flushIntervalSec"`
	ContextMessages      int   `json:"contextMessages"`
}

// NotifyConfig sizes the ephemeral notification buffer
type NotifyConfig struct {
	BufferSize     int `json:"bufferSize"`
	BufferTTLHours int `json:"bufferTtlHours"`
	ExpiryDays     int `json:"expiryDays"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig mirrors tracing.TracingConfig for JSON loading
type TracingConfig struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

// AIConfigured reports whether an AI credential is present.
func (c *Config) AIConfigured() bool {
	return c.AI.APIKey != ""
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

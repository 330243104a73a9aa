package constants

import "time"

// Pipeline timing
const (
	DefaultDebounceTTL          = 5 * time.Second
	DefaultDeferredQueueMaxSize = 20
	DefaultDeferredQueueTTL     = 10 * time.Minute
	DefaultFlushIntervalSec     = 2
	DefaultProcessingTimeoutSec = 30
	DefaultClassifierTimeoutSec = 15
	DefaultClassificationTTL    = time.Hour
	// fallback results stand in for an unavailable AI backend only briefly
	DefaultFallbackCacheTTL = 5 * time.Minute
	DefaultContextMessages      = 5
)

// Notification buffer
const (
	DefaultNotificationBufferSize = 50
	DefaultNotificationBufferTTL  = 24 * time.Hour
	DefaultNotificationExpiryDays = 30
	DefaultNotificationPageSize   = 20
	MaxNotificationPageSize       = 100
)

// Classification thresholds
const (
	RuleMatchConfidence    = 0.7
	RuleDefaultConfidence  = 0.5
	LeadConfidenceMinimum  = 0.7
	SentimentThreshold     = 0.2
	MinClassifiableRunes   = 2
	MaxSummaryRunes        = 120
	MaxAIResponseTokens    = 400
	DefaultAIModel         = "gpt-4o-mini"
	DefaultAITemperature   = 0.1
	BreakerMaxFailures     = 5
	BreakerResetTimeoutSec = 60
)

// Server and storage
const (
	DefaultServerPort            = 8082
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultMaxWebhookBodyBytes   = 1 << 20
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultRetentionDays         = 90
	DefaultCleanupIntervalHours  = 24
	DefaultWebhookRateLimit      = 600
	ServerErrorChannelSize       = 1
	MinWebhookSecretLength       = 32
)

// Validation limits
const (
	MaxMessageIDLength   = 256
	MaxSessionNameLength = 64
	MinPhoneDigits       = 8
	MaxPhoneDigits       = 15
	DefaultCountryCode   = "55"
	PhoneMatchSuffixLen  = 8
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
	DefaultMessageIDLength = 8
)

// Encryption
const (
	EncryptionSalt = "leadflow-message-text-v1"
)

// Header names
const (
	SignatureHeader    = "X-Hub-Signature-256"
	AltSignatureHeader = "X-Webhook-Signature"
	UserIDHeader       = "X-User-ID"
)

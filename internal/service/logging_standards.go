package service

// Logging Standards for leadflow
//
// Standard field names for logging calls across the pipeline.
const (
	// Core identifiers
	LogFieldSession   = "session"
	LogFieldMessageID = "message_id"
	LogFieldSender    = "sender"
	LogFieldUserID    = "user_id"
	LogFieldSellerID  = "seller_id"
	LogFieldLeadID    = "lead_id"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"

	// Pipeline fields
	LogFieldEvent         = "event"
	LogFieldDirection     = "direction"
	LogFieldIntent        = "intent"
	LogFieldConfidence    = "confidence"
	LogFieldSentiment     = "sentiment"
	LogFieldSource        = "source"
	LogFieldSkippedReason = "skipped_reason"
	LogFieldReasons       = "reasons"
	LogFieldChannel       = "channel"

	// HTTP fields
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldMethod     = "method"
	LogFieldURL        = "url"
	LogFieldRoute      = "route"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldStatusCode = "status_code"
	LogFieldSize       = "size_bytes"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"

	// Error and debugging
	LogFieldErrorCode = "error_code"
	LogFieldPanic     = "panic"
)

// Log Level Usage Guidelines
//
// DEBUG: per-message flow details, raw classification output (verbose mode only
// carries message text).
//
// INFO: startup and shutdown, leads created, alerts sent, scheduled cleanup.
//
// WARN: fallbacks taken (rule-based classification, missing customer context),
// ephemeral notification delivery failures, signature checks bypassed.
//
// ERROR: failed lead materialization, failed durable notification writes,
// audit write failures, recovered panics.
//
// FATAL: configuration or storage required for startup is unavailable.

// Standard Log Message Patterns
//
// Starting operations: "Starting [operation]"
// Failed operations: "Failed to [operation]"
// Skipping operations: "Skipping [operation]: [reason]"

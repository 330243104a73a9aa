package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"leadflow/internal/models"
	"leadflow/internal/privacy"
	"leadflow/internal/tracing"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// WithVerbose marks ctx so log entries carry unmasked identifiers and text.
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizePhoneNumber masks a phone number unless verbose logging is on.
func SanitizePhoneNumber(ctx context.Context, phone string) string {
	if IsVerboseLogging(ctx) {
		return phone
	}
	return privacy.MaskPhoneNumber(phone)
}

// SanitizeContent hides message content unless verbose logging is on.
func SanitizeContent(ctx context.Context, content string) string {
	if content == "" || IsVerboseLogging(ctx) {
		return content
	}
	return "[hidden]"
}

// messageFields are the standard fields describing an incoming message.
func messageFields(ctx context.Context, msg *models.IncomingMessage) logrus.Fields {
	fields := logrus.Fields{
		LogFieldSession:   msg.SessionID,
		LogFieldMessageID: msg.MessageID,
		LogFieldSender:    SanitizePhoneNumber(ctx, msg.SenderPhone),
		LogFieldDirection: string(msg.Direction),
	}
	if !IsVerboseLogging(ctx) {
		fields[LogFieldMessageID] = privacy.MaskMessageID(msg.MessageID)
	}
	for k, v := range tracing.GetRequestInfo(ctx).Fields() {
		fields[k] = v
	}
	return fields
}

// LogMessageProcessing logs message processing with appropriate privacy controls
func LogMessageProcessing(ctx context.Context, logger logrus.FieldLogger, msg *models.IncomingMessage, text string) {
	entry := logger.WithFields(messageFields(ctx, msg))
	if IsVerboseLogging(ctx) {
		entry = entry.WithField("content", text)
	}
	entry.Debug("Processing message")
}

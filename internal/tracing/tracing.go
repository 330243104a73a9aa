package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries the request ID in and out of the HTTP server.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLength = 64

// ContextKey represents keys used for context values
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	TraceIDKey   ContextKey = "trace_id"
	SpanIDKey    ContextKey = "span_id"
	StartTimeKey ContextKey = "start_time"
)

// RequestInfo is the correlation data attached to a request context.
type RequestInfo struct {
	RequestID string    `json:"request_id"`
	TraceID   string    `json:"trace_id"`
	SpanID    string    `json:"span_id"`
	StartTime time.Time `json:"start_time"`
}

// Fields returns the non-empty IDs as log fields.
func (ri *RequestInfo) Fields() logrus.Fields {
	fields := logrus.Fields{}
	if ri.RequestID != "" {
		fields[string(RequestIDKey)] = ri.RequestID
	}
	if ri.TraceID != "" {
		fields[string(TraceIDKey)] = ri.TraceID
	}
	if ri.SpanID != "" {
		fields[string(SpanIDKey)] = ri.SpanID
	}
	return fields
}

// newHexID returns n random bytes hex encoded, falling back to a clock based
// value tagged with prefix when the system RNG fails.
func newHexID(n int, prefix string) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func GenerateRequestID() string {
	return "req_" + newHexID(8, "ts")
}

// GenerateTraceID returns a 32 character W3C compatible trace ID.
func GenerateTraceID() string {
	return newHexID(16, "trace")
}

// GenerateSpanID returns a 16 character W3C compatible span ID.
func GenerateSpanID() string {
	return newHexID(8, "span")
}

// RequestIDFromHeader accepts a caller supplied request ID when it is short
// and made of safe characters, otherwise it generates a new one.
func RequestIDFromHeader(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxRequestIDLength {
		return GenerateRequestID()
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return GenerateRequestID()
		}
	}
	return value
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, SpanIDKey, spanID)
}

func WithStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, StartTimeKey, startTime)
}

func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}

func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDKey).(string)
	return traceID
}

func GetSpanID(ctx context.Context) string {
	spanID, _ := ctx.Value(SpanIDKey).(string)
	return spanID
}

func GetStartTime(ctx context.Context) time.Time {
	startTime, _ := ctx.Value(StartTimeKey).(time.Time)
	return startTime
}

// GetRequestInfo extracts all tracing information from context
func GetRequestInfo(ctx context.Context) *RequestInfo {
	return &RequestInfo{
		RequestID: GetRequestID(ctx),
		TraceID:   GetTraceID(ctx),
		SpanID:    GetSpanID(ctx),
		StartTime: GetStartTime(ctx),
	}
}

// WithFullTracing attaches fresh request, trace and span IDs plus the start
// time. Background jobs such as the deferred flush use it to correlate logs.
func WithFullTracing(ctx context.Context) context.Context {
	ctx = WithRequestID(ctx, GenerateRequestID())
	ctx = WithTraceID(ctx, GenerateTraceID())
	ctx = WithSpanID(ctx, GenerateSpanID())
	return WithStartTime(ctx, time.Now())
}

// Duration calculates the duration since the start time in context
func Duration(ctx context.Context) time.Duration {
	startTime := GetStartTime(ctx)
	if startTime.IsZero() {
		return 0
	}
	return time.Since(startTime)
}

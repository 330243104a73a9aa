package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"leadflow/internal/httputil"
	"leadflow/internal/metrics"
	"leadflow/internal/service"
	"leadflow/internal/tracing"
)

const unmatchedRoute = "unmatched"

var activeRequests atomic.Int64

// Observability tags every request with a request ID (honoring a caller
// supplied X-Request-ID), opens a span, records HTTP metrics by route
// template and logs start and completion. It must be installed with
// Router.Use so the matched route is known.
func Observability(logger logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeTemplate(r)
			clientIP := httputil.GetClientIP(r)
			requestID := tracing.RequestIDFromHeader(r.Header.Get(tracing.RequestIDHeader))

			ctx, span := tracing.WithOtelTracing(r.Context(), r.Method+" "+route,
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("url.path", r.URL.Path),
				attribute.String("user_agent.original", r.UserAgent()),
				attribute.String("client.address", clientIP),
			)
			defer span.End()

			ctx = tracing.WithRequestID(ctx, requestID)
			ctx = tracing.WithStartTime(ctx, time.Now())
			r = r.WithContext(ctx)
			w.Header().Set(tracing.RequestIDHeader, requestID)

			base := logger.WithFields(tracing.GetRequestInfo(ctx).Fields()).WithFields(logrus.Fields{
				service.LogFieldMethod:   r.Method,
				service.LogFieldRoute:    route,
				service.LogFieldRemoteIP: clientIP,
			})
			base.WithFields(logrus.Fields{
				service.LogFieldUserAgent: r.UserAgent(),
				"content_length":          r.ContentLength,
			}).Debug("HTTP request started")

			metrics.SetGauge("http_requests_active", float64(activeRequests.Add(1)), nil, "Currently active HTTP requests")
			defer func() {
				metrics.SetGauge("http_requests_active", float64(activeRequests.Add(-1)), nil, "Currently active HTTP requests")
			}()

			wrapper := newResponseWrapper(w)
			next.ServeHTTP(wrapper, r)

			duration := tracing.Duration(ctx)
			status := strconv.Itoa(wrapper.statusCode)

			tracing.AddSpanAttributes(ctx,
				attribute.Int("http.response.status_code", wrapper.statusCode),
				attribute.Int64("http.response.body.size", wrapper.responseSize),
			)
			if wrapper.statusCode >= 500 {
				tracing.SetSpanStatus(ctx, codes.Error, fmt.Sprintf("HTTP %d", wrapper.statusCode))
			}

			metrics.IncrementCounter("http_requests_total", map[string]string{
				"method": r.Method,
				"route":  route,
				"status": status,
			}, "HTTP requests by route and status")
			metrics.RecordTimer("http_request_duration", duration, map[string]string{
				"method": r.Method,
				"route":  route,
			}, "HTTP request duration")

			base.WithFields(logrus.Fields{
				service.LogFieldStatusCode: wrapper.statusCode,
				service.LogFieldDuration:   duration.Milliseconds(),
				service.LogFieldSize:       wrapper.responseSize,
			}).Log(levelForStatus(wrapper.statusCode), "HTTP request completed")
		})
	}
}

// WebhookObservability adds delivery metrics for a gateway webhook route.
// It expects Observability to have run first so the request carries IDs.
func WebhookObservability(logger logrus.FieldLogger, source string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			tracing.AddSpanAttributes(ctx,
				attribute.String("webhook.source", source),
				attribute.String("http.request.header.content-type", r.Header.Get("Content-Type")),
				attribute.Int64("http.request.body.size", r.ContentLength),
			)

			wrapper := newResponseWrapper(w)
			next.ServeHTTP(wrapper, r)

			elapsed := time.Since(start)
			status := strconv.Itoa(wrapper.statusCode)
			outcome := "accepted"
			if wrapper.statusCode >= 400 {
				outcome = "rejected"
			}

			metrics.IncrementCounter("webhook_deliveries_total", map[string]string{
				"source":  source,
				"outcome": outcome,
				"status":  status,
			}, "Webhook deliveries by outcome")
			metrics.RecordTimer("webhook_processing_duration", elapsed, map[string]string{
				"source": source,
			}, "Webhook processing duration")

			logger.WithFields(tracing.GetRequestInfo(ctx).Fields()).
				WithFields(logrus.Fields{
					service.LogFieldService:    "webhook",
					service.LogFieldComponent:  source,
					service.LogFieldStatusCode: wrapper.statusCode,
					service.LogFieldDuration:   elapsed.Milliseconds(),
				}).
				Log(levelForStatus(wrapper.statusCode), "Webhook delivery handled")
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return unmatchedRoute
}

func levelForStatus(status int) logrus.Level {
	switch {
	case status >= 500:
		return logrus.ErrorLevel
	case status >= 400:
		return logrus.WarnLevel
	default:
		return logrus.InfoLevel
	}
}

// responseWrapper captures the status code and body size.
type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
	wroteHeader  bool
}

func newResponseWrapper(w http.ResponseWriter) *responseWrapper {
	return &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWrapper) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWrapper) Write(data []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(data)
	rw.responseSize += int64(n)
	return n, err
}

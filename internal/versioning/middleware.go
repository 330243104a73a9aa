package versioning

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	apperrors "leadflow/internal/errors"
	"leadflow/internal/httputil"
)

type contextKey string

const versionContextKey contextKey = "api_version"

const (
	// APIVersionHeader selects the API version on requests and echoes the
	// negotiated one on responses.
	APIVersionHeader        = "X-API-Version"
	SupportedVersionsHeader = "X-Supported-Versions"
)

// Negotiate resolves the requested API version, defaulting to the current
// one. Malformed or unsupported versions are rejected before the handler
// runs.
func Negotiate(logger logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(SupportedVersionsHeader, SupportedRange())

			version := CurrentVersion
			if raw := r.Header.Get(APIVersionHeader); raw != "" {
				parsed, err := ParseVersion(raw)
				if err != nil {
					httputil.WriteError(w, r, logger, apperrors.NewValidationError(APIVersionHeader, raw, "malformed version"))
					return
				}
				if !IsSupported(parsed) {
					logger.WithField("requested_version", raw).Warn("Unsupported API version requested")
					httputil.WriteError(w, r, logger, apperrors.NewValidationError(APIVersionHeader, raw, "unsupported version, supported "+SupportedRange()))
					return
				}
				version = parsed
			}

			w.Header().Set(APIVersionHeader, version.String())
			next.ServeHTTP(w, r.WithContext(WithVersion(r.Context(), version)))
		})
	}
}

// Require rejects requests negotiated below since.
func Require(since APIVersion, logger logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v := FromContext(r.Context()); !v.Supports(since) {
				httputil.WriteError(w, r, logger, apperrors.NewValidationError(APIVersionHeader, v.String(), "endpoint requires API version "+since.String()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithVersion(ctx context.Context, v APIVersion) context.Context {
	return context.WithValue(ctx, versionContextKey, v)
}

// FromContext returns the negotiated version, or CurrentVersion when the
// request did not pass through Negotiate.
func FromContext(ctx context.Context) APIVersion {
	if v, ok := ctx.Value(versionContextKey).(APIVersion); ok {
		return v
	}
	return CurrentVersion
}

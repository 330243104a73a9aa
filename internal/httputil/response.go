package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	apperrors "leadflow/internal/errors"
	"leadflow/internal/tracing"
)

// WriteJSON writes v with the given status. Encoding failures are logged;
// the status line has already been sent by then.
func WriteJSON(w http.ResponseWriter, logger logrus.FieldLogger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && logger != nil {
		logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// WriteError maps err to its HTTP status and writes the standard error body
// carrying the request ID from r's context.
func WriteError(w http.ResponseWriter, r *http.Request, logger logrus.FieldLogger, err error) {
	status := apperrors.HTTPStatusCode(err)
	body := apperrors.ToHTTPResponse(err, tracing.GetRequestID(r.Context()))
	WriteJSON(w, logger, status, body)
}

// QueryInt parses a positive integer query parameter, returning def when it
// is absent. A malformed or non-positive value is an INVALID_INPUT error.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.NewValidationError(name, raw, "must be a positive integer")
	}
	return n, nil
}

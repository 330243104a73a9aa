package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "leadflow/internal/errors"
	"leadflow/internal/tracing"
)

func TestWriteJSON(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rec := httptest.NewRecorder()

	WriteJSON(rec, logger, http.StatusCreated, map[string]int{"count": 2})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())
	assert.Empty(t, hook.AllEntries())
}

func TestWriteJSON_EncodeFailureLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rec := httptest.NewRecorder()

	WriteJSON(rec, logger, http.StatusOK, map[string]interface{}{"bad": make(chan int)})

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Failed to encode JSON response", hook.LastEntry().Message)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   apperrors.ErrorCode
	}{
		{"invalid payload", apperrors.NewInvalidPayloadError("sender", "required"), http.StatusBadRequest, apperrors.ErrCodeInvalidPayload},
		{"bad signature", apperrors.NewInvalidSignatureError("mismatch"), http.StatusUnauthorized, apperrors.ErrCodeInvalidSignature},
		{"not found", apperrors.NewNotFoundError("notification", "7"), http.StatusNotFound, apperrors.ErrCodeNotFound},
		{"database", apperrors.NewDatabaseError("insert", assert.AnError), http.StatusServiceUnavailable, apperrors.ErrCodeDatabaseQuery},
		{"plain error", assert.AnError, http.StatusInternalServerError, apperrors.ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", nil)
			req = req.WithContext(tracing.WithRequestID(req.Context(), "req_test"))
			rec := httptest.NewRecorder()

			WriteError(rec, req, nil, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var body apperrors.HTTPErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, "req_test", body.RequestID)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{query: "", want: 20},
		{query: "?size=5", want: 5},
		{query: "?size=0", wantErr: true},
		{query: "?size=-2", wantErr: true},
		{query: "?size=ten", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/notifications/history"+tt.query, nil)
			got, err := QueryInt(req, "size", 20)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

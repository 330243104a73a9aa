package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"leadflow/internal/constants"
	"leadflow/internal/httputil"
	"leadflow/internal/privacy"
	"leadflow/internal/service"
	"leadflow/internal/tracing"
)

const maskedValue = "***MASKED***"

// DetailedLoggingConfig controls what gets logged
type DetailedLoggingConfig struct {
	LogRequestHeaders  bool     `json:"log_request_headers"`
	LogResponseHeaders bool     `json:"log_response_headers"`
	LogRequestBody     bool     `json:"log_request_body"`
	LogResponseBody    bool     `json:"log_response_body"`
	MaxBodySize        int      `json:"max_body_size"`
	SensitiveHeaders   []string `json:"sensitive_headers"`
	SkipPaths          []string `json:"skip_paths"`
}

// DefaultDetailedLoggingConfig logs request headers only. Bodies carry
// customer messages and stay off unless explicitly enabled.
func DefaultDetailedLoggingConfig() DetailedLoggingConfig {
	return DetailedLoggingConfig{
		LogRequestHeaders: true,
		MaxBodySize:       4096,
		SensitiveHeaders: []string{
			"authorization", "cookie", "set-cookie", "x-api-key",
			constants.SignatureHeader, constants.AltSignatureHeader,
		},
		SkipPaths: []string{"/health", "/metrics", "/metrics/prometheus"},
	}
}

// DetailedLogging emits debug entries with headers and, when enabled, bodies
// of requests and responses. Known personal fields in JSON bodies are
// masked.
func DetailedLogging(logger logrus.FieldLogger, config DetailedLoggingConfig) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range config.SkipPaths {
				if r.URL.Path == skip {
					next.ServeHTTP(w, r)
					return
				}
			}

			entry := logger.WithFields(tracing.GetRequestInfo(r.Context()).Fields())
			logRequestDetails(entry, r, config)

			if !config.LogResponseBody && !config.LogResponseHeaders {
				next.ServeHTTP(w, r)
				return
			}

			capture := &responseCaptureWrapper{
				ResponseWriter: w,
				body:           bytes.NewBuffer(nil),
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(capture, r)
			logResponseDetails(entry, capture, config)
		})
	}
}

func logRequestDetails(entry logrus.FieldLogger, r *http.Request, config DetailedLoggingConfig) {
	fields := logrus.Fields{
		service.LogFieldMethod:   r.Method,
		service.LogFieldURL:      r.URL.Path,
		service.LogFieldRemoteIP: httputil.GetClientIP(r),
		"content_length":         r.ContentLength,
		"protocol":               r.Proto,
	}

	if config.LogRequestHeaders {
		fields["request_headers"] = maskHeaders(r.Header, config.SensitiveHeaders)
	}

	if config.LogRequestBody && isTextContent(r.Header.Get("Content-Type")) && r.Body != nil {
		limit := int64(config.MaxBodySize)
		body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
		if err == nil {
			r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
			if int64(len(body)) > limit {
				fields["request_body"] = fmt.Sprintf("***TRUNCATED*** (over %d bytes)", limit)
			} else {
				fields["request_body"] = maskBody(body)
			}
		}
	}

	entry.WithFields(fields).Debug("Detailed request logging")
}

func logResponseDetails(entry logrus.FieldLogger, capture *responseCaptureWrapper, config DetailedLoggingConfig) {
	fields := logrus.Fields{
		service.LogFieldStatusCode: capture.statusCode,
		service.LogFieldSize:       capture.body.Len(),
	}

	if config.LogResponseHeaders {
		fields["response_headers"] = maskHeaders(capture.Header(), config.SensitiveHeaders)
	}

	if config.LogResponseBody && capture.body.Len() > 0 {
		if capture.body.Len() <= config.MaxBodySize {
			fields["response_body"] = maskBody(capture.body.Bytes())
		} else {
			fields["response_body"] = fmt.Sprintf("***TRUNCATED*** (size: %d bytes)", capture.body.Len())
		}
	}

	entry.WithFields(fields).Debug("Detailed response logging")
}

func maskHeaders(h http.Header, sensitive []string) map[string]string {
	headers := make(map[string]string, len(h))
	for name, values := range h {
		if isSensitiveHeader(name, sensitive) {
			headers[name] = maskedValue
			continue
		}
		headers[name] = strings.Join(values, ", ")
	}
	return headers
}

// maskBody masks personal fields at any depth of a JSON body. Non-JSON
// bodies are replaced by their length.
func maskBody(body []byte) string {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return privacy.MaskText(string(body))
	}
	out, err := json.Marshal(maskValue(doc))
	if err != nil {
		return privacy.MaskText(string(body))
	}
	return string(out)
}

func maskValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		masked := privacy.MaskSensitiveFields(val)
		for k, child := range masked {
			switch child.(type) {
			case map[string]interface{}, []interface{}:
				masked[k] = maskValue(child)
			}
		}
		return masked
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = maskValue(child)
		}
		return out
	default:
		return v
	}
}

// responseCaptureWrapper tees the response body for logging.
type responseCaptureWrapper struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
}

func (rc *responseCaptureWrapper) Write(data []byte) (int, error) {
	n, err := rc.ResponseWriter.Write(data)
	rc.body.Write(data[:n])
	return n, err
}

func (rc *responseCaptureWrapper) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func isSensitiveHeader(headerName string, sensitiveHeaders []string) bool {
	for _, sensitive := range sensitiveHeaders {
		if strings.EqualFold(sensitive, headerName) {
			return true
		}
	}
	return false
}

func isTextContent(contentType string) bool {
	for _, textType := range []string{"application/json", "text/", "application/x-www-form-urlencoded"} {
		if strings.Contains(contentType, textType) {
			return true
		}
	}
	return false
}

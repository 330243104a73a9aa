package httputil

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expectedIP string
	}{
		{
			name:       "forwarded chain takes first",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.7, 203.0.113.9, 192.0.2.1"},
			expectedIP: "198.51.100.7",
		},
		{
			name:       "forwarded ipv6",
			headers:    map[string]string{"X-Forwarded-For": "2001:db8::1, 203.0.113.9"},
			expectedIP: "2001:db8::1",
		},
		{
			name:       "forwarded entries are trimmed",
			headers:    map[string]string{"X-Forwarded-For": "  203.0.113.10  ,  198.51.100.2  "},
			expectedIP: "203.0.113.10",
		},
		{
			name:       "garbage forwarded entries are skipped",
			headers:    map[string]string{"X-Forwarded-For": "unknown, <script>, 203.0.113.44"},
			expectedIP: "203.0.113.44",
		},
		{
			name:       "real ip when no forwarded header",
			headers:    map[string]string{"X-Real-IP": "203.0.113.12"},
			expectedIP: "203.0.113.12",
		},
		{
			name:       "bracketed real ip",
			headers:    map[string]string{"X-Real-IP": "[2001:db8::2]"},
			expectedIP: "2001:db8::2",
		},
		{
			name:       "forwarded wins over real ip",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.77", "X-Real-IP": "203.0.113.200"},
			expectedIP: "198.51.100.77",
		},
		{
			name:       "invalid headers fall back to remote addr",
			headers:    map[string]string{"X-Forwarded-For": "nope", "X-Real-IP": "also-nope"},
			remoteAddr: "192.0.2.55:54321",
			expectedIP: "192.0.2.55",
		},
		{
			name:       "remote addr ipv6",
			remoteAddr: "[2001:db8::5]:8443",
			expectedIP: "2001:db8::5",
		},
		{
			name:       "malformed remote addr returned raw",
			remoteAddr: "not_an_ip_port",
			expectedIP: "not_an_ip_port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/webhook/whatsapp", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expectedIP, GetClientIP(req))
		})
	}
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_Counters(t *testing.T) {
	p := NewPipeline()

	p.ObserveWebhook("accepted")
	p.ObserveWebhook("accepted")
	p.ObserveWebhook("skipped")
	p.ObserveClassification("rule-based", "QUOTE_REQUEST", false, 5*time.Millisecond)
	p.ObserveLead("created")
	p.ObserveAlert()
	p.ObserveNotificationFailure("ephemeral")
	p.ObserveDeferred()
	p.ObserveFlush()

	assert.Equal(t, 2.0, testutil.ToFloat64(p.WebhooksReceived.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.WebhooksReceived.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Classifications.WithLabelValues("rule-based", "QUOTE_REQUEST", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.LeadsCreated.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.AlertsSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.DeferredQueued))
}

func TestPipeline_NilSafe(t *testing.T) {
	var p *Pipeline
	assert.NotPanics(t, func() {
		p.ObserveWebhook("accepted")
		p.ObserveClassification("ai", "GREETING", true, time.Millisecond)
		p.ObserveLead("failed")
		p.ObserveAlert()
		p.ObserveProcessing(time.Second)
	})
}

func TestPipeline_Handler(t *testing.T) {
	p := NewPipeline()
	p.ObserveAlert()

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/prometheus", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "leadflow_seller_alerts_total 1")
}

func TestNewPipeline_Independent(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPipeline()
		NewPipeline()
	})
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline holds the Prometheus collectors for the ingestion pipeline.
// All methods are safe on a nil receiver.
type Pipeline struct {
	registry *prometheus.Registry

	WebhooksReceived       *prometheus.CounterVec
	Classifications        *prometheus.CounterVec
	ClassificationDuration *prometheus.HistogramVec
	LeadsCreated           *prometheus.CounterVec
	AlertsSent             prometheus.Counter
	NotificationFailures   *prometheus.CounterVec
	DeferredQueued         prometheus.Counter
	DeferredFlushed        prometheus.Counter
	ProcessingDuration     prometheus.Histogram
}

// NewPipeline registers the pipeline collectors on a dedicated registry.
func NewPipeline() *Pipeline {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Pipeline{
		registry: reg,
		WebhooksReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_webhooks_total",
			Help: "Webhook deliveries by outcome",
		}, []string{"outcome"}),
		Classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_classifications_total",
			Help: "Classifications by source and intent",
		}, []string{"source", "intent", "cached"}),
		ClassificationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadflow_classification_duration_seconds",
			Help:    "Time taken to classify a message",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		LeadsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_leads_total",
			Help: "Lead materialization attempts by outcome",
		}, []string{"outcome"}),
		AlertsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadflow_seller_alerts_total",
			Help: "Seller alerts dispatched",
		}),
		NotificationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_notification_failures_total",
			Help: "Notification writes that failed by channel",
		}, []string{"channel"}),
		DeferredQueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadflow_deferred_queued_total",
			Help: "Messages queued behind an active debounce gate",
		}),
		DeferredFlushed: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadflow_deferred_flushed_total",
			Help: "Deferred queues drained and processed",
		}),
		ProcessingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadflow_processing_duration_seconds",
			Help:    "End-to-end webhook processing time",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handler exposes the collectors in the Prometheus text format.
func (p *Pipeline) Handler() http.Handler {
	if p == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying registry.
func (p *Pipeline) Gatherer() prometheus.Gatherer {
	if p == nil {
		return prometheus.NewRegistry()
	}
	return p.registry
}

func (p *Pipeline) ObserveWebhook(outcome string) {
	if p == nil {
		return
	}
	p.WebhooksReceived.WithLabelValues(outcome).Inc()
	IncrementCounter("webhooks_total", map[string]string{"outcome": outcome}, "Webhook deliveries by outcome")
}

func (p *Pipeline) ObserveClassification(source, intent string, cached bool, d time.Duration) {
	if p == nil {
		return
	}
	c := "false"
	if cached {
		c = "true"
	}
	p.Classifications.WithLabelValues(source, intent, c).Inc()
	p.ClassificationDuration.WithLabelValues(source).Observe(d.Seconds())
	RecordTimer("classification_duration", d, map[string]string{"source": source}, "Time taken to classify a message")
}

func (p *Pipeline) ObserveLead(outcome string) {
	if p == nil {
		return
	}
	p.LeadsCreated.WithLabelValues(outcome).Inc()
}

func (p *Pipeline) ObserveAlert() {
	if p == nil {
		return
	}
	p.AlertsSent.Inc()
}

func (p *Pipeline) ObserveNotificationFailure(channel string) {
	if p == nil {
		return
	}
	p.NotificationFailures.WithLabelValues(channel).Inc()
}

func (p *Pipeline) ObserveDeferred() {
	if p == nil {
		return
	}
	p.DeferredQueued.Inc()
}

func (p *Pipeline) ObserveFlush() {
	if p == nil {
		return
	}
	p.DeferredFlushed.Inc()
}

func (p *Pipeline) ObserveProcessing(d time.Duration) {
	if p == nil {
		return
	}
	p.ProcessingDuration.Observe(d.Seconds())
}

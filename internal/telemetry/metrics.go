package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tournevent/cdek/pkg/cdek"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	APIErrors       *prometheus.CounterVec
	TokenRefreshes  *prometheus.CounterVec
	Webhooks        *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdek_requests_total",
				Help: "Total number of CDEK API requests by operation and status",
			},
			[]string{"operation", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cdek_request_duration_seconds",
				Help:    "CDEK API request duration in seconds by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		APIErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdek_errors_total",
				Help: "Total CDEK API errors by error type",
			},
			[]string{"error_type"},
		),
		TokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdek_token_refreshes_total",
				Help: "Total OAuth token acquisitions by outcome",
			},
			[]string{"outcome"},
		),
		Webhooks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdek_webhooks_total",
				Help: "Total webhook notifications by event type and outcome",
			},
			[]string{"type", "outcome"},
		),
	}
}

// RecordRequest records a request metric.
func (m *Metrics) RecordRequest(operation, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordError records an API error metric.
func (m *Metrics) RecordError(errorType string) {
	m.APIErrors.WithLabelValues(errorType).Inc()
}

// RecordTokenRefresh records a token acquisition.
func (m *Metrics) RecordTokenRefresh(outcome string) {
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

// RecordWebhook records a webhook notification.
func (m *Metrics) RecordWebhook(eventType, outcome string) {
	m.Webhooks.WithLabelValues(eventType, outcome).Inc()
}

var _ cdek.Recorder = (*Metrics)(nil)

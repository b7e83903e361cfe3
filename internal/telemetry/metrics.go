package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	CallbacksTotal     *prometheus.CounterVec
	TransitionsIgnored *prometheus.CounterVec
	RetriesProcessed   *prometheus.CounterVec
	RetrySweepDuration prometheus.Histogram
}

// NewMetrics creates Prometheus metrics registered on reg. A nil reg
// falls back to the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sendparcel_requests_total",
				Help: "Total number of requests by operation, provider, and status",
			},
			[]string{"operation", "provider", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sendparcel_request_duration_seconds",
				Help:    "Request duration in seconds by operation and provider",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "provider"},
		),
		CallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sendparcel_callbacks_total",
				Help: "Inbound provider callbacks by provider and result",
			},
			[]string{"provider", "result"},
		),
		TransitionsIgnored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sendparcel_transitions_ignored_total",
				Help: "Callback/status transitions silently ignored, by reason (stale, unknown_status)",
			},
			[]string{"provider", "reason"},
		),
		RetriesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sendparcel_retries_processed_total",
				Help: "Retry entries processed by the sweep, by outcome",
			},
			[]string{"outcome"},
		),
		RetrySweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sendparcel_retry_sweep_duration_seconds",
				Help:    "Duration of one retry sweep",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RecordRequest records a request metric.
func (m *Metrics) RecordRequest(operation, provider, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(operation, provider, status).Inc()
	m.RequestDuration.WithLabelValues(operation, provider).Observe(duration)
}

// RecordCallback records an inbound callback outcome.
func (m *Metrics) RecordCallback(provider, result string) {
	m.CallbacksTotal.WithLabelValues(provider, result).Inc()
}

// RecordIgnoredTransition records a silently ignored transition.
func (m *Metrics) RecordIgnoredTransition(provider, reason string) {
	m.TransitionsIgnored.WithLabelValues(provider, reason).Inc()
}

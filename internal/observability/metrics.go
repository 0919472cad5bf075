package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects runtime counters and histograms. Exposing them (HTTP
// handler, push, etc.) is the embedding process's concern.
type Metrics struct {
	// EventCounter tracks events by channel and direction.
	EventCounter *prometheus.CounterVec

	// LoopIterations measures loop iterations consumed per inbound event.
	LoopIterations prometheus.Histogram

	// ProviderRequestCounter counts provider completions by status
	// (success|rate_limited|timeout|malformed).
	ProviderRequestCounter *prometheus.CounterVec

	// ProviderRetries counts retry attempts against the provider gateway.
	ProviderRetries prometheus.Counter

	// DispatchCounter counts capability dispatches by kind and status
	// (success|error|timeout|not_found).
	DispatchCounter *prometheus.CounterVec

	// DispatchDuration measures capability execution time in seconds.
	DispatchDuration *prometheus.HistogramVec

	// ApprovalCounter counts approval resolutions by outcome.
	ApprovalCounter *prometheus.CounterVec

	// ActiveConversations tracks conversations with an in-flight loop.
	ActiveConversations prometheus.Gauge
}

// NewMetrics registers all runtime metrics on the given registerer. Pass
// prometheus.DefaultRegisterer for the usual global registry, or a private
// registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		EventCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adjutant_events_total",
				Help: "Total events processed by channel and direction",
			},
			[]string{"channel", "direction"},
		),
		LoopIterations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "adjutant_loop_iterations",
				Help:    "Loop iterations consumed per inbound event",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
		),
		ProviderRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adjutant_provider_requests_total",
				Help: "Provider completion requests by status",
			},
			[]string{"status"},
		),
		ProviderRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "adjutant_provider_retries_total",
				Help: "Retry attempts against the provider gateway",
			},
		),
		DispatchCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adjutant_dispatches_total",
				Help: "Capability dispatches by handler kind and status",
			},
			[]string{"kind", "status"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adjutant_dispatch_duration_seconds",
				Help:    "Capability execution time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"capability"},
		),
		ApprovalCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adjutant_approvals_total",
				Help: "Approval request resolutions by outcome",
			},
			[]string{"outcome"},
		),
		ActiveConversations: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "adjutant_active_conversations",
				Help: "Conversations with an in-flight loop",
			},
		),
	}
}

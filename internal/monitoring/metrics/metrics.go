package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncOutcomes counts per-task synchronization outcomes by provider.
	SyncOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxhive_task_sync_outcomes_total",
			Help: "Task synchronization outcomes partitioned by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// SweepRuns counts periodic sweep executions.
	SweepRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fluxhive_sweep_runs_total",
			Help: "Number of periodic sweep executions",
		},
	)

	// WebhookDeliveries counts inbound provider webhook deliveries by result.
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxhive_webhook_deliveries_total",
			Help: "Inbound provider webhook deliveries by handling result",
		},
		[]string{"result"},
	)

	// RequestDuration observes HTTP request latency by route and status.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fluxhive_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// RecordSyncOutcome increments the sync outcome counter.
func RecordSyncOutcome(provider, outcome string) {
	SyncOutcomes.WithLabelValues(provider, outcome).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initStorageMetrics() {
	r.StorageStatementsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "replicator_storage_statements_total",
			Help: "Statements executed against the local storage engine",
		},
		[]string{"type", "status"}, // type: read, write
	)

	r.StorageStatementDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replicator_storage_statement_duration_seconds",
			Help:    "Local statement execution latency",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"type"},
	)
}

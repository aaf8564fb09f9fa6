package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initDispatchMetrics() {
	r.DispatchPacketsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "replicator_dispatch_packets_total",
			Help: "Inbound packets handled by the dispatcher",
		},
		[]string{"kind", "status"},
	)

	r.DispatchDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replicator_dispatch_duration_seconds",
			Help:    "Time from packet read to response written",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"kind"},
	)

	r.DispatchInFlight = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "replicator_dispatch_in_flight",
			Help: "Connections currently being served",
		},
	)

	r.DispatchChecksumFailures = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "replicator_dispatch_checksum_failures_total",
			Help: "Packets rejected because the payload checksum did not match",
		},
	)
}

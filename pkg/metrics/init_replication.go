package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initReplicationMetrics() {
	r.ReplicationDeliveriesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "replicator_replication_deliveries_total",
			Help: "Per-peer packet delivery attempts",
		},
		[]string{"kind", "result"}, // result: delivered, failed
	)

	r.ReplicationBroadcastDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replicator_replication_broadcast_duration_seconds",
			Help:    "Time to fan a packet out to every peer",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"kind"},
	)

	r.ReplicationAcksTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "replicator_replication_acks_total",
			Help: "Peer responses to replicated statements when acknowledgments are awaited",
		},
		[]string{"result"}, // acked, rejected
	)

	r.ReplicationPolicyUnsatisfiedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "replicator_replication_policy_unsatisfied_total",
			Help: "Replicated writes whose acknowledgment policy was not met",
		},
	)

	r.ReplicationHeartbeatsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "replicator_replication_heartbeats_total",
			Help: "Total number of heartbeats",
		},
		[]string{"direction"}, // sent, received, ignored
	)
}

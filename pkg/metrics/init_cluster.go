package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initClusterMetrics() {
	r.ClusterMembersTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "replicator_cluster_members_total",
			Help: "Number of nodes in the static cluster membership",
		},
	)

	r.ClusterLeaderID = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "replicator_cluster_leader_id",
			Help: "Id of the node currently believed to be leader",
		},
	)

	r.ClusterIsLeader = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "replicator_cluster_is_leader",
			Help: "Whether this node is the leader (1=yes, 0=no)",
		},
	)

	r.ClusterLeaderSignalAge = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "replicator_cluster_leader_signal_age_seconds",
			Help: "Seconds since the last liveness signal attributed to the leader",
		},
	)

	r.ClusterLeaderChangesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "replicator_cluster_leader_changes_total",
			Help: "Total number of observed leader changes",
		},
	)

	r.ClusterElectionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "replicator_cluster_elections_total",
			Help: "Total number of leader elections run by this node",
		},
		[]string{"result"}, // elected, deferred, skipped
	)

	r.ClusterElectionDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "replicator_cluster_election_duration_seconds",
			Help:    "Duration of leader elections in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
	)

	r.ClusterElectionProbesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "replicator_cluster_election_probes_total",
			Help: "Election probes sent to higher-ranked peers",
		},
		[]string{"result"}, // alive, unreachable
	)
}

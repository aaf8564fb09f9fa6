// Package metrics exposes Prometheus metrics for a replicator node.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the application
type Registry struct {
	// Cluster Metrics
	ClusterMembersTotal        prometheus.Gauge
	ClusterLeaderID            prometheus.Gauge
	ClusterIsLeader            prometheus.Gauge
	ClusterLeaderSignalAge     prometheus.Gauge
	ClusterLeaderChangesTotal  prometheus.Counter
	ClusterElectionsTotal      *prometheus.CounterVec
	ClusterElectionDuration    prometheus.Histogram
	ClusterElectionProbesTotal *prometheus.CounterVec

	// Replication Metrics
	ReplicationDeliveriesTotal        *prometheus.CounterVec
	ReplicationBroadcastDuration      *prometheus.HistogramVec
	ReplicationAcksTotal              *prometheus.CounterVec
	ReplicationPolicyUnsatisfiedTotal prometheus.Counter
	ReplicationHeartbeatsTotal        *prometheus.CounterVec

	// Dispatch Metrics
	DispatchPacketsTotal     *prometheus.CounterVec
	DispatchDuration         *prometheus.HistogramVec
	DispatchInFlight         prometheus.Gauge
	DispatchChecksumFailures prometheus.Counter

	// Storage Metrics
	StorageStatementsTotal   *prometheus.CounterVec
	StorageStatementDuration *prometheus.HistogramVec

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initClusterMetrics()
	r.initReplicationMetrics()
	r.initDispatchMetrics()
	r.initStorageMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

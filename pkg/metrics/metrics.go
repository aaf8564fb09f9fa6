package metrics

import (
	"runtime"
	"time"
)

// RecordPacket records a dispatched packet with its handling duration
func (r *Registry) RecordPacket(kind, status string, duration time.Duration) {
	r.DispatchPacketsTotal.WithLabelValues(kind, status).Inc()
	r.DispatchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordStatement records a local storage execution
func (r *Registry) RecordStatement(stmtType, status string, duration time.Duration) {
	r.StorageStatementsTotal.WithLabelValues(stmtType, status).Inc()
	r.StorageStatementDuration.WithLabelValues(stmtType).Observe(duration.Seconds())
}

// RecordDelivery records one per-peer delivery attempt
func (r *Registry) RecordDelivery(kind string, delivered bool) {
	result := "delivered"
	if !delivered {
		result = "failed"
	}
	r.ReplicationDeliveriesTotal.WithLabelValues(kind, result).Inc()
}

// RecordElection records the outcome of an election run
func (r *Registry) RecordElection(result string, duration time.Duration) {
	r.ClusterElectionsTotal.WithLabelValues(result).Inc()
	r.ClusterElectionDuration.Observe(duration.Seconds())
}

// SetLeader updates the leader gauges from this node's point of view
func (r *Registry) SetLeader(leaderID, selfID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ClusterLeaderID.Set(float64(leaderID))
	if leaderID == selfID {
		r.ClusterIsLeader.Set(1)
	} else {
		r.ClusterIsLeader.Set(0)
	}
}

// UpdateSystemMetrics refreshes process-level gauges
func (r *Registry) UpdateSystemMetrics(startTime time.Time) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	r.UptimeSeconds.Set(time.Since(startTime).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(mem.Alloc))
}

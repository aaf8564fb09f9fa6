package health

import (
	"context"
	"net"
	"runtime"
	"time"

	"github.com/dd0wney/cluso-replicator/pkg/cluster"
)

// LeaderCheck reports how fresh this node's view of the leader is. A leader is
// always healthy. A follower is degraded once the leader signal is older than
// timeout, which is also when the failure detector starts an election.
func LeaderCheck(self int, leadership *cluster.Leadership, timeout time.Duration) CheckFunc {
	return func(ctx context.Context) Check {
		status, age := leadership.StatusWithAge()

		check := Check{
			Name: "leader",
			Details: map[string]any{
				"leader_id":            status.LeaderID,
				"is_leader":            status.LeaderID == self,
				"signal_age_seconds":   age.Seconds(),
				"election_in_progress": status.ElectionInProgress,
			},
		}

		switch {
		case status.LeaderID == self:
			check.Status = StatusHealthy
			check.Message = "This node is the leader"
		case status.ElectionInProgress:
			check.Status = StatusDegraded
			check.Message = "Election in progress"
		case age > timeout:
			check.Status = StatusDegraded
			check.Message = "Leader signal is stale"
		default:
			check.Status = StatusHealthy
			check.Message = "Leader is alive"
		}
		return check
	}
}

// StorageCheck creates a health check for local storage connectivity
func StorageCheck(ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) Check {
		check := Check{
			Name: "storage",
		}

		if err := ping(ctx); err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
		} else {
			check.Status = StatusHealthy
			check.Message = "Connected"
		}

		return check
	}
}

// ListenerCheck reports whether the peer port is accepting connections.
// addr returns nil until the listener is up.
func ListenerCheck(addr func() net.Addr) CheckFunc {
	return func(ctx context.Context) Check {
		check := Check{Name: "listener"}

		a := addr()
		if a == nil {
			check.Status = StatusUnhealthy
			check.Message = "Peer port not listening"
			return check
		}

		check.Status = StatusHealthy
		check.Message = "Listening"
		check.Details = map[string]any{"addr": a.String()}
		return check
	}
}

// MemoryCheck creates a health check for memory usage
func MemoryCheck() CheckFunc {
	return func(ctx context.Context) Check {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		check := Check{
			Name: "memory",
			Details: map[string]any{
				"alloc_bytes": m.Alloc,
				"sys_bytes":   m.Sys,
				"goroutines":  runtime.NumGoroutine(),
			},
		}

		usagePercent := float64(m.Alloc) / float64(m.Sys) * 100
		if usagePercent > 90 {
			check.Status = StatusDegraded
			check.Message = "High memory usage"
		} else {
			check.Status = StatusHealthy
			check.Message = "Memory usage normal"
		}

		return check
	}
}

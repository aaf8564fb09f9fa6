// Package election keeps a leader known in a fixed-membership cluster.
//
// The Detector broadcasts heartbeats on a fixed period and watches the age of
// the last leader signal. When the leader has been silent for longer than the
// configured timeout it runs a bully election through the Elector: probe every
// higher-ranked member, defer to the first that answers, otherwise declare this
// node the leader and broadcast a COORDINATOR packet.
package election

import (
	"time"

	"github.com/dd0wney/cluso-replicator/pkg/replication"
)

// Payloads of the control packets this package sends
const (
	HeartbeatPayload   = "HEARTBEAT"
	ElectionPayload    = "ELECTION"
	CoordinatorPayload = "NEW LEADER"
)

// Outcome is the result of one election run
type Outcome int

const (
	// OutcomeSkipped means another election was already running on this node
	OutcomeSkipped Outcome = iota
	// OutcomeDeferred means a higher-ranked member accepted a probe
	OutcomeDeferred
	// OutcomeElected means no higher-ranked member answered and this node took over
	OutcomeElected
)

// String returns a metric-friendly name for the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDeferred:
		return "deferred"
	case OutcomeElected:
		return "elected"
	default:
		return "unknown"
	}
}

// Result describes a finished election run
type Result struct {
	Outcome     Outcome
	DeferredTo  int                // member that answered the probe, when deferred
	Probed      []int              // members probed, in probe order
	Coordinator replication.Report // COORDINATOR fan-out, when elected
	Duration    time.Duration
}

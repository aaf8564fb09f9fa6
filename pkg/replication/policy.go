package replication

import (
	"fmt"

	"github.com/dd0wney/cluso-replicator/pkg/cluster"
)

// AckPolicy decides whether a replicated write needs peer acknowledgments and
// when enough of them arrived
type AckPolicy interface {
	Name() string
	AwaitsAcks() bool
	Satisfied(acked, peers int) bool
}

// FireAndForget sends to every peer and never waits. It is always satisfied.
type FireAndForget struct{}

func (FireAndForget) Name() string { return cluster.PolicyFireAndForget }
func (FireAndForget) AwaitsAcks() bool { return false }
func (FireAndForget) Satisfied(_, _ int) bool { return true }

// Quorum requires at least N peers to acknowledge
type Quorum struct {
	N int
}

func (q Quorum) Name() string { return fmt.Sprintf("%s(%d)", cluster.PolicyQuorum, q.N) }
func (Quorum) AwaitsAcks() bool { return true }
func (q Quorum) Satisfied(acked, _ int) bool { return acked >= q.N }

// All requires every peer to acknowledge
type All struct{}

func (All) Name() string { return cluster.PolicyAll }
func (All) AwaitsAcks() bool { return true }
func (All) Satisfied(acked, peers int) bool { return acked >= peers }

// PolicyFromConfig builds the policy named in the replication configuration
func PolicyFromConfig(cfg cluster.ReplicationConfig) (AckPolicy, error) {
	switch cfg.Policy {
	case "", cluster.PolicyFireAndForget:
		return FireAndForget{}, nil
	case cluster.PolicyQuorum:
		return Quorum{N: cfg.Quorum}, nil
	case cluster.PolicyAll:
		return All{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, cfg.Policy)
	}
}

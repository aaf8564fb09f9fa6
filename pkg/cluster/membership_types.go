package cluster

import (
	"fmt"
	"net"
	"sort"
	"strconv"
)

// NodeIdentity describes one cluster member. Loaded once at startup and never
// mutated afterwards.
type NodeIdentity struct {
	ID      int    // Positive node identifier, 0 is reserved for clients
	Address string // Host name or IP
	Port    int    // Peer protocol port
}

// Addr returns the dialable host:port of the node
func (n NodeIdentity) Addr() string {
	return net.JoinHostPort(n.Address, strconv.Itoa(n.Port))
}

// String returns a short human readable description
func (n NodeIdentity) String() string {
	return fmt.Sprintf("node %d (%s)", n.ID, n.Addr())
}

// Membership is the read-only table of cluster members plus this node's id.
//
// Concurrent Safety: immutable after construction, safe to share without locks.
type Membership struct {
	self  int
	nodes []NodeIdentity // sorted by id
}

// NewMembership builds a membership view. nodes must contain self.
func NewMembership(self int, nodes []NodeIdentity) (*Membership, error) {
	if len(nodes) == 0 {
		return nil, ErrEmptyMembership
	}

	sorted := make([]NodeIdentity, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	found := false
	for i, n := range sorted {
		if n.ID <= 0 {
			return nil, fmt.Errorf("%w: got %d", ErrReservedNodeID, n.ID)
		}
		if i > 0 && sorted[i-1].ID == n.ID {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateNodeID, n.ID)
		}
		if n.ID == self {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %d", ErrSelfNotMember, self)
	}

	return &Membership{self: self, nodes: sorted}, nil
}

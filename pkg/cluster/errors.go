package cluster

import "errors"

// Configuration errors
var (
	ErrInvalidConfig     = errors.New("invalid cluster configuration")
	ErrDuplicateNodeID   = errors.New("duplicate node id in membership")
	ErrSelfNotMember     = errors.New("node id is not listed in membership")
	ErrQuorumUnreachable = errors.New("replication quorum larger than peer count")
)

// Membership errors
var (
	ErrNodeNotFound    = errors.New("node not found in membership")
	ErrEmptyMembership = errors.New("membership must contain at least one node")
	ErrReservedNodeID  = errors.New("node id 0 is reserved for external clients")
)

// Package protocol defines the fixed-size packet exchanged between cluster nodes
// and between external clients and a node.
//
// Wire layout, integers in network byte order:
//
//	+--------+----------+----------------------------+----------+
//	| kind   | origin   | payload (NUL padded)       | checksum |
//	| uint32 | int32    | [PayloadSize]byte          | uint64   |
//	+--------+----------+----------------------------+----------+
//
// The checksum is the sum of the payload byte values up to the first NUL. It is
// the only integrity mechanism: there is no authentication, encryption or replay
// protection.
package protocol

import "math"

const (
	// PayloadSize is the fixed size of the payload field on the wire
	PayloadSize = 1024

	// PacketSize is the total encoded size of a packet
	PacketSize = 4 + 4 + PayloadSize + 8

	// ClientOrigin marks a packet introduced by an external client rather than
	// replayed by a cluster member
	ClientOrigin = 0

	maxOrigin = math.MaxInt32
)

// Kind identifies the purpose of a packet
type Kind uint32

const (
	// KindHeartbeat is a periodic liveness signal
	KindHeartbeat Kind = 1
	// KindQuery carries a statement to execute
	KindQuery Kind = 2
	// KindElection probes a higher-ranked node during an election
	KindElection Kind = 3
	// KindCoordinator announces a new leader
	KindCoordinator Kind = 4
)

// String returns the string representation of a Kind
func (k Kind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindQuery:
		return "query"
	case KindElection:
		return "election"
	case KindCoordinator:
		return "coordinator"
	default:
		return "unknown"
	}
}

// Known reports whether k is one of the defined message kinds
func (k Kind) Known() bool {
	return k >= KindHeartbeat && k <= KindCoordinator
}

// Packet is the unit of wire communication
type Packet struct {
	Kind     Kind
	Origin   int    // sender node id, or ClientOrigin
	Payload  string // statement or liveness tag, at most PayloadSize bytes
	Checksum uint64
}

// FromClient reports whether the packet was introduced by an external client
func (p Packet) FromClient() bool {
	return p.Origin == ClientOrigin
}

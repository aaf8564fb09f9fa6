package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/dd0wney/cluso-replicator/pkg/logging"
	"github.com/dd0wney/cluso-replicator/pkg/protocol"
	"github.com/dd0wney/cluso-replicator/pkg/storage"
)

// Response texts
const (
	respChecksumMismatch = "ERROR: checksum mismatch"
	respUnknownKind      = "ERROR: unknown message kind"
	respMalformed        = "ERROR: malformed packet"
	nullValue            = "NULL"
	fieldSeparator       = " | "
)

// reply is the outcome of routing one packet. A client write under a policy
// that waits for acknowledgments also carries the copy still to be replicated.
type reply struct {
	text    string
	status  string
	forward *protocol.Packet
}

func (s *Server) handle(ctx context.Context, pkt protocol.Packet, logger logging.Logger) reply {
	if err := pkt.Validate(); err != nil {
		logger.Warn("rejecting corrupt packet",
			logging.Kind(pkt.Kind.String()),
			logging.Origin(pkt.Origin),
			logging.Uint64("checksum", pkt.Checksum),
			logging.Error(err),
		)
		if s.metricsRegistry != nil {
			s.metricsRegistry.DispatchChecksumFailures.Inc()
		}
		return reply{text: respChecksumMismatch, status: "corrupt"}
	}

	switch pkt.Kind {
	case protocol.KindHeartbeat:
		s.handleHeartbeat(pkt, logger)
		return reply{status: "ok"}
	case protocol.KindCoordinator:
		logger.Info("coordinator announcement", logging.Leader(pkt.Origin))
		s.leadership.AcceptCoordinator(pkt.Origin)
		return reply{status: "ok"}
	case protocol.KindElection:
		return reply{text: s.handleElection(pkt, logger), status: "ok"}
	case protocol.KindQuery:
		return s.handleQuery(ctx, pkt, logger)
	default:
		logger.Warn("unknown message kind", logging.Int("kind", int(pkt.Kind)))
		return reply{text: respUnknownKind, status: "unknown"}
	}
}

func (s *Server) handleHeartbeat(pkt protocol.Packet, logger logging.Logger) {
	direction := "received"
	if !s.leadership.ObserveHeartbeat(pkt.Origin) {
		direction = "ignored"
	}
	logger.Debug("heartbeat", logging.Origin(pkt.Origin), logging.String("result", direction))
	if s.metricsRegistry != nil {
		s.metricsRegistry.ReplicationHeartbeatsTotal.WithLabelValues(direction).Inc()
	}
}

// handleElection answers a bully probe. A probe from a lower-ranked node means
// that node thinks the leader is gone, so this node runs its own election (or
// re-announces itself) in the background.
func (s *Server) handleElection(pkt protocol.Packet, logger logging.Logger) string {
	logger.Info("election probe", logging.Origin(pkt.Origin))
	if pkt.Origin < s.config.NodeID && s.elections != nil {
		s.elections.Trigger()
	}
	return fmt.Sprintf("ALIVE %d", s.config.NodeID)
}

func (s *Server) handleQuery(ctx context.Context, pkt protocol.Packet, logger logging.Logger) reply {
	self := s.config.NodeID
	logger = logger.With(logging.Origin(pkt.Origin))

	queryCtx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	result, err := s.executor.Execute(queryCtx, pkt.Payload)
	cancel()
	if err != nil {
		logger.Warn("statement failed", logging.Error(err))
		return reply{text: fmt.Sprintf("ERROR: node %d: %s", self, storage.ErrorMessage(err)), status: "error"}
	}

	if storage.IsReadStatement(pkt.Payload) {
		return reply{text: formatRows(self, result), status: "ok"}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "OK: executed on node %d.", self)

	// Only statements introduced by a client are replicated; a copy from a
	// peer already carries that peer's id and stops here
	if !pkt.FromClient() {
		return reply{text: b.String(), status: "ok"}
	}

	fwd := pkt.WithOrigin(self)
	policy := s.replicator.Policy()
	if !policy.AwaitsAcks() {
		if s.replicator.ReplicateAsync(ctx, fwd) {
			fmt.Fprintf(&b, "\n(replication dispatched to %d peers)", s.replicator.PeerCount())
		} else {
			logger.Warn("replication skipped during shutdown")
			b.WriteString("\nWARNING: replication skipped, node is shutting down")
		}
		return reply{text: b.String(), status: "ok"}
	}

	return reply{text: b.String(), status: "ok", forward: &fwd}
}

// awaitReplication replicates r.forward under the waiting policy and appends
// the acknowledgment summary to the local result
func (s *Server) awaitReplication(ctx context.Context, r reply) string {
	report := s.replicator.Replicate(ctx, *r.forward)

	var b strings.Builder
	b.WriteString(r.text)
	fmt.Fprintf(&b, "\n(replication acknowledged by %d of %d peers)", len(report.Acked), len(report.Attempted))
	if !report.Satisfied {
		fmt.Fprintf(&b, "\nWARNING: replication policy %s not satisfied", report.Policy)
	}
	return b.String()
}

func formatRows(self int, result *storage.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "RESULTS FROM NODE %d:\n", self)
	if result == nil {
		return b.String()
	}
	for _, row := range result.Rows {
		for i, v := range row {
			if i > 0 {
				b.WriteString(fieldSeparator)
			}
			if v == nil {
				b.WriteString(nullValue)
			} else {
				b.WriteString(*v)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

package election

import (
	"context"
	"errors"

	"github.com/dd0wney/cluso-replicator/pkg/cluster"
	"github.com/dd0wney/cluso-replicator/pkg/logging"
	"github.com/dd0wney/cluso-replicator/pkg/metrics"
	"github.com/dd0wney/cluso-replicator/pkg/protocol"
	"github.com/dd0wney/cluso-replicator/pkg/replication"
)

// Elector runs bully elections for one node
type Elector struct {
	membership  *cluster.Membership
	leadership  *cluster.Leadership
	sender      replication.Sender
	broadcaster *replication.Broadcaster
	logger      logging.Logger

	metricsRegistry *metrics.Registry
}

// ElectorOption configures an Elector
type ElectorOption func(*Elector)

// WithElectorLogger sets the elector logger
func WithElectorLogger(logger logging.Logger) ElectorOption {
	return func(e *Elector) { e.logger = logger }
}

// WithElectorMetrics sets the registry updated by election runs
func WithElectorMetrics(reg *metrics.Registry) ElectorOption {
	return func(e *Elector) { e.metricsRegistry = reg }
}

// NewElector creates an elector. Probes go through sender; the COORDINATOR
// announcement goes through broadcaster.
func NewElector(
	membership *cluster.Membership,
	leadership *cluster.Leadership,
	sender replication.Sender,
	broadcaster *replication.Broadcaster,
	opts ...ElectorOption,
) *Elector {
	e := &Elector{
		membership:  membership,
		leadership:  leadership,
		sender:      sender,
		broadcaster: broadcaster,
		logger:      logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logging.Component("election"), logging.NodeID(membership.SelfID()))
	return e
}

// Run performs one election. Only one run is active per node at a time; a
// concurrent call returns OutcomeSkipped. If ctx is cancelled while probing the
// run stops without declaring leadership and returns ctx.Err().
func (e *Elector) Run(ctx context.Context) (Result, error) {
	if !e.leadership.TryBeginElection() {
		e.logger.Debug("election already in progress")
		if e.metricsRegistry != nil {
			e.metricsRegistry.ClusterElectionsTotal.WithLabelValues(OutcomeSkipped.String()).Inc()
		}
		return Result{Outcome: OutcomeSkipped}, nil
	}
	defer e.leadership.EndElection()

	timer := logging.StartTimer(e.logger, "election finished")
	result, err := e.run(ctx)
	result.Duration = timer.Elapsed()
	if err != nil {
		timer.End(logging.String("outcome", "cancelled"), logging.Error(err))
		return result, err
	}
	timer.End(
		logging.String("outcome", result.Outcome.String()),
		logging.Int("deferred_to", result.DeferredTo),
		logging.Count(len(result.Probed)),
	)

	if e.metricsRegistry != nil {
		e.metricsRegistry.RecordElection(result.Outcome.String(), result.Duration)
	}
	return result, nil
}

func (e *Elector) run(ctx context.Context) (Result, error) {
	self := e.membership.SelfID()
	probe := protocol.MustEncode(protocol.KindElection, self, ElectionPayload)

	higher := e.membership.Higher()
	e.logger.Info("starting election",
		logging.Leader(e.leadership.LeaderID()),
		logging.Count(len(higher)),
	)

	var result Result
	for _, node := range higher {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Probed = append(result.Probed, node.ID)

		err := e.sender.Deliver(ctx, node.Addr(), probe)
		if errors.Is(err, replication.ErrPeerUnreachable) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			e.recordProbe("unreachable")
			e.logger.Debug("higher node unreachable", logging.Peer(node.ID), logging.Error(err))
			continue
		}

		// Any accepted connection counts as a live higher-ranked node, even if
		// the write afterwards failed
		e.recordProbe("alive")
		e.logger.Info("higher node online, deferring", logging.Peer(node.ID))
		result.Outcome = OutcomeDeferred
		result.DeferredTo = node.ID
		return result, nil
	}

	e.leadership.DeclareSelf()
	e.logger.Info("no higher node reachable, taking leadership")
	result.Outcome = OutcomeElected
	result.Coordinator = e.Announce(ctx)
	return result, nil
}

// Announce broadcasts a COORDINATOR packet naming this node as leader
func (e *Elector) Announce(ctx context.Context) replication.Report {
	pkt := protocol.MustEncode(protocol.KindCoordinator, e.membership.SelfID(), CoordinatorPayload)
	return e.broadcaster.Broadcast(ctx, pkt)
}

func (e *Elector) recordProbe(result string) {
	if e.metricsRegistry != nil {
		e.metricsRegistry.ClusterElectionProbesTotal.WithLabelValues(result).Inc()
	}
}

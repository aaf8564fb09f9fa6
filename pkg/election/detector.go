package election

import (
	"context"
	"time"

	"github.com/dd0wney/cluso-replicator/pkg/cluster"
	"github.com/dd0wney/cluso-replicator/pkg/logging"
	"github.com/dd0wney/cluso-replicator/pkg/metrics"
	"github.com/dd0wney/cluso-replicator/pkg/protocol"
	"github.com/dd0wney/cluso-replicator/pkg/replication"
)

// Detector is the periodic failure detector. Every interval it broadcasts a
// heartbeat and, on a follower whose leader has been silent for longer than
// timeout, runs an election.
type Detector struct {
	membership  *cluster.Membership
	leadership  *cluster.Leadership
	broadcaster *replication.Broadcaster
	elector     *Elector
	interval    time.Duration
	timeout     time.Duration
	trigger     chan struct{}
	logger      logging.Logger

	metricsRegistry *metrics.Registry
}

// DetectorOption configures a Detector
type DetectorOption func(*Detector)

// WithDetectorLogger sets the detector logger
func WithDetectorLogger(logger logging.Logger) DetectorOption {
	return func(d *Detector) { d.logger = logger }
}

// WithDetectorMetrics sets the registry updated on each tick
func WithDetectorMetrics(reg *metrics.Registry) DetectorOption {
	return func(d *Detector) { d.metricsRegistry = reg }
}

// NewDetector creates a failure detector
func NewDetector(
	membership *cluster.Membership,
	leadership *cluster.Leadership,
	broadcaster *replication.Broadcaster,
	elector *Elector,
	interval, timeout time.Duration,
	opts ...DetectorOption,
) *Detector {
	d := &Detector{
		membership:  membership,
		leadership:  leadership,
		broadcaster: broadcaster,
		elector:     elector,
		interval:    interval,
		timeout:     timeout,
		trigger:     make(chan struct{}, 1),
		logger:      logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(logging.Component("detector"), logging.NodeID(membership.SelfID()))
	return d
}

// Run ticks until ctx is cancelled
func (d *Detector) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("failure detector started",
		logging.Duration("interval", d.interval),
		logging.Duration("timeout", d.timeout),
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("failure detector stopped")
			return nil
		case <-ticker.C:
			d.Tick(ctx)
		case <-d.trigger:
			d.respondToProbe(ctx)
		}
	}
}

// Tick runs one detector period: heartbeat, then the staleness check. It
// returns the election result when an election ran, nil otherwise.
func (d *Detector) Tick(ctx context.Context) *Result {
	hb := protocol.MustEncode(protocol.KindHeartbeat, d.membership.SelfID(), HeartbeatPayload)
	report := d.broadcaster.Broadcast(ctx, hb)

	status, age := d.leadership.StatusWithAge()
	if d.metricsRegistry != nil {
		d.metricsRegistry.ReplicationHeartbeatsTotal.WithLabelValues("sent").Add(float64(len(report.Delivered)))
		d.metricsRegistry.ClusterLeaderSignalAge.Set(age.Seconds())
	}

	// A leader is never stale to itself
	if status.LeaderID == d.membership.SelfID() || age <= d.timeout {
		return nil
	}

	d.logger.Warn("leader silent, starting election",
		logging.Leader(status.LeaderID),
		logging.Duration("signal_age", age),
	)
	return d.elect(ctx)
}

// Trigger asks the detector to react to an election probe from a lower-ranked
// node. It never blocks; triggers arriving while one is pending are merged.
func (d *Detector) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// respondToProbe re-announces leadership when this node already leads,
// otherwise runs its own election
func (d *Detector) respondToProbe(ctx context.Context) *Result {
	if d.leadership.IsLeader() {
		d.logger.Debug("probed by lower node, re-announcing leadership")
		d.elector.Announce(ctx)
		return nil
	}
	d.logger.Info("probed by lower node, starting election")
	return d.elect(ctx)
}

func (d *Detector) elect(ctx context.Context) *Result {
	result, err := d.elector.Run(ctx)
	if err != nil {
		d.logger.Warn("election aborted", logging.Error(err))
		return nil
	}
	d.logger.Info("election finished",
		logging.String("outcome", result.Outcome.String()),
		logging.Leader(d.leadership.LeaderID()),
		logging.Latency(result.Duration),
	)
	return &result
}

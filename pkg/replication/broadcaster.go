package replication

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-replicator/pkg/cluster"
	"github.com/dd0wney/cluso-replicator/pkg/logging"
	"github.com/dd0wney/cluso-replicator/pkg/metrics"
	"github.com/dd0wney/cluso-replicator/pkg/protocol"
)

// Report summarizes one fan-out of a packet
type Report struct {
	Packet    protocol.Packet
	Policy    string
	Attempted []int         // every peer a delivery was attempted to
	Delivered []int         // peers that accepted the packet
	Acked     []int         // peers that answered OK, only filled when acks are awaited
	Failed    map[int]error // per-peer transport errors
	Satisfied bool          // whether the acknowledgment policy was met
	Duration  time.Duration
}

// Broadcaster fans packets out to every member except this node. Each peer is
// contacted on its own goroutine and a failing peer never affects another.
type Broadcaster struct {
	membership *cluster.Membership
	sender     Sender
	policy     AckPolicy
	logger     logging.Logger

	metricsRegistry *metrics.Registry
	background      inflight
}

// Option configures a Broadcaster
type Option func(*Broadcaster)

// WithPolicy sets the acknowledgment policy used by Replicate
func WithPolicy(p AckPolicy) Option {
	return func(b *Broadcaster) { b.policy = p }
}

// WithLogger sets the broadcaster logger
func WithLogger(logger logging.Logger) Option {
	return func(b *Broadcaster) { b.logger = logger }
}

// WithMetrics sets the registry that records deliveries
func WithMetrics(reg *metrics.Registry) Option {
	return func(b *Broadcaster) { b.metricsRegistry = reg }
}

// NewBroadcaster creates a broadcaster using fire-and-forget unless another
// policy is given
func NewBroadcaster(membership *cluster.Membership, sender Sender, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		membership: membership,
		sender:     sender,
		policy:     FireAndForget{},
		logger:     logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(logging.Component("replication"))
	return b
}

// Policy returns the acknowledgment policy used by Replicate
func (b *Broadcaster) Policy() AckPolicy {
	return b.policy
}

// PeerCount returns the number of peers a broadcast reaches
func (b *Broadcaster) PeerCount() int {
	return b.membership.Size() - 1
}

// Broadcast sends pkt to every peer without waiting for responses
func (b *Broadcaster) Broadcast(ctx context.Context, pkt protocol.Packet) Report {
	return b.fanOut(ctx, pkt, false, FireAndForget{})
}

// Replicate sends a mutating statement to every peer under the configured
// policy. With fire-and-forget it behaves like Broadcast; otherwise each peer's
// response is read and a response starting with "OK" counts as an acknowledgment.
func (b *Broadcaster) Replicate(ctx context.Context, pkt protocol.Packet) Report {
	report := b.fanOut(ctx, pkt, b.policy.AwaitsAcks(), b.policy)
	if !report.Satisfied {
		b.logger.Warn("replication policy not satisfied",
			logging.String("policy", report.Policy),
			logging.Count(len(report.Acked)),
			logging.Int("peers", len(report.Attempted)),
		)
		if b.metricsRegistry != nil {
			b.metricsRegistry.ReplicationPolicyUnsatisfiedTotal.Inc()
		}
	}
	return report
}

// ReplicateAsync runs Replicate on a tracked goroutine with a context detached
// from ctx's cancellation. Returns false when the broadcaster is shutting down.
func (b *Broadcaster) ReplicateAsync(ctx context.Context, pkt protocol.Packet) bool {
	detached := context.WithoutCancel(ctx)
	return b.background.Go(func() {
		b.Replicate(detached, pkt)
	})
}

// Pending returns the number of asynchronous replications still running
func (b *Broadcaster) Pending() int {
	return b.background.Pending()
}

// Drain blocks until every asynchronous replication finished and refuses new ones
func (b *Broadcaster) Drain() {
	b.background.CloseAndWait()
}

func (b *Broadcaster) fanOut(ctx context.Context, pkt protocol.Packet, awaitAcks bool, policy AckPolicy) Report {
	start := time.Now()
	kind := pkt.Kind.String()
	peers := b.membership.Peers()

	report := Report{
		Packet:    pkt,
		Policy:    policy.Name(),
		Attempted: make([]int, 0, len(peers)),
		Failed:    make(map[int]error),
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, peer := range peers {
		report.Attempted = append(report.Attempted, peer.ID)

		g.Go(func() error {
			acked := false
			var err error
			if awaitAcks {
				var resp string
				resp, err = b.sender.Exchange(ctx, peer.Addr(), pkt)
				acked = err == nil && strings.HasPrefix(resp, "OK")
				if err == nil && !acked {
					b.logger.Warn("peer rejected replicated statement",
						logging.Peer(peer.ID),
						logging.String("response", firstLine(resp)),
					)
				}
			} else {
				err = b.sender.Deliver(ctx, peer.Addr(), pkt)
			}

			b.record(kind, err == nil, awaitAcks, acked)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[peer.ID] = err
				level := b.logger.Warn
				if errors.Is(err, ErrPeerUnreachable) && pkt.Kind == protocol.KindHeartbeat {
					level = b.logger.Debug
				}
				level("peer delivery failed",
					logging.Peer(peer.ID),
					logging.Kind(kind),
					logging.Addr(peer.Addr()),
					logging.Error(err),
				)
				return fmt.Errorf("peer %d: %w", peer.ID, err)
			}
			report.Delivered = append(report.Delivered, peer.ID)
			if acked {
				report.Acked = append(report.Acked, peer.ID)
			}
			return nil
		})
	}
	// Peers never cancel one another; Wait reports the first failure only for
	// the summary below, every failure is already in report.Failed
	firstErr := g.Wait()

	slices.Sort(report.Delivered)
	slices.Sort(report.Acked)
	if awaitAcks {
		report.Satisfied = policy.Satisfied(len(report.Acked), len(peers))
	} else {
		report.Satisfied = true
	}
	report.Duration = time.Since(start)

	if b.metricsRegistry != nil {
		b.metricsRegistry.ReplicationBroadcastDuration.WithLabelValues(kind).Observe(report.Duration.Seconds())
	}
	b.logger.Debug("fan-out complete",
		logging.Kind(kind),
		logging.Origin(pkt.Origin),
		logging.Count(len(report.Delivered)),
		logging.Int("failed", len(report.Failed)),
		logging.Latency(report.Duration),
		logging.Error(firstErr),
	)

	return report
}

func (b *Broadcaster) record(kind string, delivered, awaitAcks, acked bool) {
	if b.metricsRegistry == nil {
		return
	}
	b.metricsRegistry.RecordDelivery(kind, delivered)
	if awaitAcks && delivered {
		result := "rejected"
		if acked {
			result = "acked"
		}
		b.metricsRegistry.ReplicationAcksTotal.WithLabelValues(result).Inc()
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

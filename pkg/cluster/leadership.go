package cluster

import (
	"sync"
	"time"

	"github.com/dd0wney/cluso-replicator/pkg/logging"
	"github.com/dd0wney/cluso-replicator/pkg/metrics"
)

// LeaderStatus is a snapshot of the shared leadership state
type LeaderStatus struct {
	LeaderID           int       // Node currently believed to be leader
	LastSignal         time.Time // Last liveness signal attributed to the leader
	ElectionInProgress bool      // Set while this node runs an election
}

// SignalAge returns how long ago the leader was last heard from
func (s LeaderStatus) SignalAge(now time.Time) time.Duration {
	return now.Sub(s.LastSignal)
}

// Leadership owns the LeadershipState of a node. The dispatcher and the failure
// detector both mutate it; every read and transition runs on a single goroutine
// fed through a command channel, so no caller ever sees a partial update.
//
// Once Close has been called all mutations are ignored and Status returns the
// zero value.
type Leadership struct {
	self      int
	cmds      chan func(*LeaderStatus)
	done      chan struct{}
	closeOnce sync.Once
	clock     func() time.Time
	logger    logging.Logger

	metricsRegistry *metrics.Registry
}

// LeadershipOption configures a Leadership
type LeadershipOption func(*Leadership)

// WithClock replaces time.Now, mainly for tests
func WithClock(clock func() time.Time) LeadershipOption {
	return func(l *Leadership) { l.clock = clock }
}

// WithLeadershipLogger sets the logger used to report leader changes
func WithLeadershipLogger(logger logging.Logger) LeadershipOption {
	return func(l *Leadership) { l.logger = logger }
}

// WithLeadershipMetrics sets the registry updated on leader changes
func WithLeadershipMetrics(reg *metrics.Registry) LeadershipOption {
	return func(l *Leadership) { l.metricsRegistry = reg }
}

// NewLeadership starts the state owner. The initial leader is assumed alive as of
// now; callers normally pass the highest member id.
func NewLeadership(self, initialLeader int, opts ...LeadershipOption) *Leadership {
	l := &Leadership{
		self:   self,
		cmds:   make(chan func(*LeaderStatus)),
		done:   make(chan struct{}),
		clock:  time.Now,
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.metricsRegistry != nil {
		l.metricsRegistry.SetLeader(initialLeader, self)
	}

	go l.run(LeaderStatus{LeaderID: initialLeader, LastSignal: l.clock()})
	return l
}

func (l *Leadership) run(state LeaderStatus) {
	for {
		select {
		case cmd := <-l.cmds:
			cmd(&state)
		case <-l.done:
			return
		}
	}
}

// exec runs cmd on the owner goroutine and waits for it to finish
func (l *Leadership) exec(cmd func(*LeaderStatus)) bool {
	finished := make(chan struct{})
	select {
	case l.cmds <- func(s *LeaderStatus) { cmd(s); close(finished) }:
	case <-l.done:
		return false
	}
	<-finished
	return true
}

// Close stops the owner goroutine
func (l *Leadership) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// Status returns a consistent snapshot of the state
func (l *Leadership) Status() LeaderStatus {
	var snapshot LeaderStatus
	l.exec(func(s *LeaderStatus) { snapshot = *s })
	return snapshot
}

// StatusWithAge returns a snapshot together with its signal age, both read
// from the same state
func (l *Leadership) StatusWithAge() (LeaderStatus, time.Duration) {
	var snapshot LeaderStatus
	var age time.Duration
	l.exec(func(s *LeaderStatus) {
		snapshot = *s
		age = s.SignalAge(l.clock())
	})
	return snapshot, age
}

// LeaderID returns the current leader id
func (l *Leadership) LeaderID() int {
	return l.Status().LeaderID
}

// IsLeader reports whether this node believes it is the leader
func (l *Leadership) IsLeader() bool {
	return l.LeaderID() == l.self
}

// ObserveHeartbeat refreshes the leader signal when origin is the current
// leader. Heartbeats from any other node are ignored. Returns whether the
// signal was refreshed.
func (l *Leadership) ObserveHeartbeat(origin int) bool {
	refreshed := false
	l.exec(func(s *LeaderStatus) {
		if origin == s.LeaderID {
			s.LastSignal = l.clock()
			refreshed = true
		}
	})
	return refreshed
}

// AcceptCoordinator records origin as the leader unconditionally
func (l *Leadership) AcceptCoordinator(origin int) {
	l.setLeader(origin)
}

// DeclareSelf records this node as the leader
func (l *Leadership) DeclareSelf() {
	l.setLeader(l.self)
}

func (l *Leadership) setLeader(id int) {
	var previous int
	ok := l.exec(func(s *LeaderStatus) {
		previous = s.LeaderID
		s.LeaderID = id
		s.LastSignal = l.clock()
	})

	if !ok || previous == id {
		return
	}

	l.logger.Info("leader changed",
		logging.NodeID(l.self),
		logging.Int("previous_leader_id", previous),
		logging.Leader(id),
		logging.Bool("self", id == l.self),
	)
	if l.metricsRegistry != nil {
		l.metricsRegistry.SetLeader(id, l.self)
		l.metricsRegistry.ClusterLeaderChangesTotal.Inc()
	}
}

// TryBeginElection sets the election-in-progress flag. It returns false when an
// election is already running.
func (l *Leadership) TryBeginElection() bool {
	began := false
	l.exec(func(s *LeaderStatus) {
		if !s.ElectionInProgress {
			s.ElectionInProgress = true
			began = true
		}
	})
	return began
}

// EndElection clears the election-in-progress flag
func (l *Leadership) EndElection() {
	l.exec(func(s *LeaderStatus) { s.ElectionInProgress = false })
}

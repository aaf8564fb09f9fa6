// Package dispatch serves the node's peer port. Each inbound connection carries
// exactly one packet and receives at most one text response before the node
// closes it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-replicator/pkg/cluster"
	"github.com/dd0wney/cluso-replicator/pkg/logging"
	"github.com/dd0wney/cluso-replicator/pkg/metrics"
	"github.com/dd0wney/cluso-replicator/pkg/protocol"
	"github.com/dd0wney/cluso-replicator/pkg/replication"
	"github.com/dd0wney/cluso-replicator/pkg/storage"
)

// ErrServerClosed is returned by Serve after Close or context cancellation
var ErrServerClosed = errors.New("dispatch: server closed")

// Replicator forwards mutating statements to the other members.
// *replication.Broadcaster implements it.
type Replicator interface {
	Replicate(ctx context.Context, pkt protocol.Packet) replication.Report
	ReplicateAsync(ctx context.Context, pkt protocol.Packet) bool
	Policy() replication.AckPolicy
	PeerCount() int
}

// ElectionTrigger is notified when a lower-ranked node probes this one
type ElectionTrigger interface {
	Trigger()
}

// Config holds dispatcher settings
type Config struct {
	NodeID       int
	QueryTimeout time.Duration // bound on one local statement
	IOTimeout    time.Duration // bound on reading the request and writing the response
	Workers      int           // 1 serves connections one at a time on the accept loop
}


// Server is the connection dispatcher
type Server struct {
	config     Config
	leadership *cluster.Leadership
	executor   storage.Executor
	replicator Replicator
	elections  ElectionTrigger
	logger     logging.Logger

	metricsRegistry *metrics.Registry

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	replies sync.WaitGroup // responses still waiting on replication acks
}

// Option configures a Server
type Option func(*Server)

// WithElectionTrigger sets who reacts to ELECTION probes
func WithElectionTrigger(t ElectionTrigger) Option {
	return func(s *Server) { s.elections = t }
}

// WithLogger sets the server logger
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics sets the registry that records dispatched packets
func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Server) { s.metricsRegistry = reg }
}

// NewServer creates a dispatcher
func NewServer(cfg Config, leadership *cluster.Leadership, executor storage.Executor, replicator Replicator, opts ...Option) *Server {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	s := &Server{
		config:     cfg,
		leadership: leadership,
		executor:   executor,
		replicator: replicator,
		logger:     logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.Component("dispatch"), logging.NodeID(cfg.NodeID))
	return s
}

// ListenAndServe listens on addr and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or Close is called.
// Before returning it waits for every accepted connection to be handled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.replies.Wait()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	var pool *workerPool
	if s.config.Workers > 1 {
		pool = newWorkerPool(s.config.Workers, s.logger)
		defer pool.Close()
	}

	s.logger.Info("dispatcher listening",
		logging.Addr(ln.Addr().String()),
		logging.Int("workers", s.config.Workers),
	)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn("accept timeout", logging.Error(err))
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		if pool == nil {
			s.serveConn(ctx, conn, true)
			continue
		}
		if !pool.Submit(func() { s.serveConn(ctx, conn, true) }) {
			conn.Close()
		}
	}
}

// Addr returns the listening address, nil before Serve
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting connections
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ServeConn handles one connection: read one packet, respond, close
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	s.serveConn(ctx, conn, false)
}

// serveConn handles one connection. With detach set, a client write that must
// wait for peer acknowledgments is finished on its own goroutine once the
// statement has executed locally, so the accept loop or pool worker is free to
// take the peers' own replicated writes meanwhile.
func (s *Server) serveConn(ctx context.Context, conn net.Conn, detach bool) {
	logger := s.logger.With(
		logging.RequestID(uuid.NewString()),
		logging.Addr(conn.RemoteAddr().String()),
	)
	start := time.Now()

	if s.metricsRegistry != nil {
		s.metricsRegistry.DispatchInFlight.Inc()
	}
	release := func() {
		conn.Close()
		if s.metricsRegistry != nil {
			s.metricsRegistry.DispatchInFlight.Dec()
		}
	}
	defer func() {
		if release != nil {
			release()
		}
	}()
	defer recoverHandler(logger)

	if err := conn.SetReadDeadline(time.Now().Add(s.config.IOTimeout)); err != nil {
		logger.Warn("failed to set read deadline", logging.Error(err))
		return
	}
	pkt, err := protocol.ReadPacket(conn)
	if err != nil {
		s.record("malformed", "malformed", start)
		if errors.Is(err, protocol.ErrInvalidOrigin) {
			// A complete packet with an impossible header is answered; a
			// partial one is not
			logger.Warn("rejecting malformed packet", logging.Error(err))
			s.respond(conn, respMalformed, logger)
			return
		}
		logger.Debug("discarding partial packet", logging.Error(err))
		return
	}

	r := s.handle(ctx, pkt, logger)
	if r.forward == nil || !detach {
		if r.forward != nil {
			r.text = s.awaitReplication(ctx, r)
		}
		s.record(pkt.Kind.String(), r.status, start)
		s.respond(conn, r.text, logger)
		return
	}

	finish := release
	release = nil
	s.replies.Add(1)
	go func() {
		defer s.replies.Done()
		defer finish()
		defer recoverHandler(logger)

		text := s.awaitReplication(ctx, r)
		s.record(pkt.Kind.String(), r.status, start)
		s.respond(conn, text, logger)
	}()
}

func (s *Server) respond(conn net.Conn, text string, logger logging.Logger) {
	if text == "" {
		return
	}
	if err := conn.SetWriteDeadline(time.Now().Add(s.config.IOTimeout)); err != nil {
		logger.Warn("failed to set write deadline", logging.Error(err))
		return
	}
	if _, err := conn.Write([]byte(text)); err != nil {
		logger.Debug("failed to write response", logging.Error(err))
	}
}

func recoverHandler(logger logging.Logger) {
	if r := recover(); r != nil {
		logger.Error("connection handler panic recovered", logging.String("panic", fmt.Sprint(r)))
	}
}

// Handle routes one decoded packet and returns the text response, empty when
// the kind has none
func (s *Server) Handle(ctx context.Context, pkt protocol.Packet) string {
	r := s.handle(ctx, pkt, s.logger)
	if r.forward != nil {
		return s.awaitReplication(ctx, r)
	}
	return r.text
}

func (s *Server) record(kind, status string, start time.Time) {
	if s.metricsRegistry != nil {
		s.metricsRegistry.RecordPacket(kind, status, time.Since(start))
	}
}

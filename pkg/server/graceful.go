// Package server runs the node's operations HTTP endpoint (/metrics and
// /health) alongside the peer port.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dd0wney/cluso-replicator/pkg/logging"
)

// DefaultShutdownTimeout bounds how long in-flight HTTP requests may run after
// the node is asked to stop
const DefaultShutdownTimeout = 5 * time.Second

// GracefulServer wraps an HTTP server that stops when its context ends
type GracefulServer struct {
	server          *http.Server
	shutdownCh      chan struct{}
	shutdownDone    chan struct{}
	shutdownOnce    sync.Once
	shutdownTimeout time.Duration
	logger          logging.Logger
}

// NewGracefulServer creates a new graceful HTTP server
func NewGracefulServer(addr string, handler http.Handler, logger logging.Logger) *GracefulServer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &GracefulServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		shutdownCh:      make(chan struct{}),
		shutdownDone:    make(chan struct{}),
		shutdownTimeout: DefaultShutdownTimeout,
		logger:          logger.With(logging.Component("ops")),
	}
}

// Run listens on the configured address and serves until ctx is cancelled
func (gs *GracefulServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", gs.server.Addr)
	if err != nil {
		return err
	}
	return gs.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully
func (gs *GracefulServer) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		if err := gs.Shutdown(gs.shutdownTimeout); err != nil {
			gs.logger.Warn("ops server shutdown error", logging.Error(err))
		}
	})
	defer stop()

	gs.logger.Info("ops endpoint listening", logging.Addr(ln.Addr().String()))
	if err := gs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Serve returns as soon as Shutdown starts; wait for it to finish draining
	if gs.IsShuttingDown() {
		<-gs.shutdownDone
	}
	return nil
}

// Shutdown initiates a graceful shutdown
func (gs *GracefulServer) Shutdown(timeout time.Duration) error {
	var err error
	gs.shutdownOnce.Do(func() {
		close(gs.shutdownCh)
		defer close(gs.shutdownDone)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		gs.logger.Debug("ops server shutting down", logging.Duration("timeout", timeout))
		err = gs.server.Shutdown(ctx)
	})
	return err
}

// IsShuttingDown returns true if shutdown has been initiated
func (gs *GracefulServer) IsShuttingDown() bool {
	select {
	case <-gs.shutdownCh:
		return true
	default:
		return false
	}
}

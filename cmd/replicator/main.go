package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-replicator/pkg/cluster"
	"github.com/dd0wney/cluso-replicator/pkg/dispatch"
	"github.com/dd0wney/cluso-replicator/pkg/election"
	"github.com/dd0wney/cluso-replicator/pkg/health"
	"github.com/dd0wney/cluso-replicator/pkg/logging"
	"github.com/dd0wney/cluso-replicator/pkg/metrics"
	"github.com/dd0wney/cluso-replicator/pkg/replication"
	"github.com/dd0wney/cluso-replicator/pkg/server"
	"github.com/dd0wney/cluso-replicator/pkg/storage"
)

const systemMetricsInterval = 15 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Node configuration file (.yaml/.yml, or the line format)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "replicator: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := cluster.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	defer logger.Sync()

	membership, err := cfg.Membership()
	if err != nil {
		return err
	}
	self := membership.SelfID()
	nodeLogger := logger.With(logging.NodeID(self))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	reg := metrics.NewRegistry()
	reg.ClusterMembersTotal.Set(float64(membership.Size()))

	executor, err := storage.NewPGExecutor(ctx, cfg.Storage.DSN, cfg.Storage.MaxConns,
		storage.WithLogger(nodeLogger),
		storage.WithMetrics(reg),
	)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer executor.Close()

	leadership := cluster.NewLeadership(self, membership.HighestID(),
		cluster.WithLeadershipLogger(nodeLogger),
		cluster.WithLeadershipMetrics(reg),
	)
	defer leadership.Close()

	policy, err := replication.PolicyFromConfig(cfg.Replication)
	if err != nil {
		return err
	}
	transport := replication.NewTransport(cfg.DialTimeout, cfg.IOTimeout)
	broadcaster := replication.NewBroadcaster(membership, transport,
		replication.WithPolicy(policy),
		replication.WithLogger(nodeLogger),
		replication.WithMetrics(reg),
	)

	elector := election.NewElector(membership, leadership, transport, broadcaster,
		election.WithElectorLogger(logger),
		election.WithElectorMetrics(reg),
	)
	detector := election.NewDetector(membership, leadership, broadcaster, elector,
		cfg.HeartbeatInterval, cfg.LeaderTimeout,
		election.WithDetectorLogger(logger),
		election.WithDetectorMetrics(reg),
	)

	dispatcher := dispatch.NewServer(
		dispatch.Config{
			NodeID:       self,
			QueryTimeout: cfg.QueryTimeout,
			IOTimeout:    cfg.IOTimeout,
			Workers:      cfg.Workers,
		},
		leadership, executor, broadcaster,
		dispatch.WithElectionTrigger(detector),
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(reg),
	)

	ln, err := net.Listen("tcp", cfg.ResolveListenAddr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ResolveListenAddr(), err)
	}

	nodeLogger.Info("node starting",
		logging.Addr(ln.Addr().String()),
		logging.Count(membership.Size()),
		logging.Leader(leadership.LeaderID()),
		logging.String("policy", policy.Name()),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := dispatcher.Serve(gctx, ln); !errors.Is(err, dispatch.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return detector.Run(gctx) })
	g.Go(func() error {
		ticker := time.NewTicker(systemMetricsInterval)
		defer ticker.Stop()
		for {
			reg.UpdateSystemMetrics(startTime)
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	if cfg.OpsAddr != "" {
		ops := server.NewGracefulServer(cfg.OpsAddr, newOpsHandler(cfg, self, reg, leadership, executor, dispatcher), nodeLogger)
		g.Go(func() error {
			if err := ops.Run(gctx); err != nil {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()

	nodeLogger.Info("draining in-flight replications", logging.Count(broadcaster.Pending()))
	broadcaster.Drain()
	nodeLogger.Info("node stopped")
	return err
}

// newOpsHandler serves /metrics and the health endpoints
func newOpsHandler(
	cfg cluster.Config,
	self int,
	reg *metrics.Registry,
	leadership *cluster.Leadership,
	store storage.Pinger,
	dispatcher *dispatch.Server,
) http.Handler {
	hc := health.NewHealthChecker()
	hc.RegisterCheck("leader", health.LeaderCheck(self, leadership, cfg.LeaderTimeout))
	hc.RegisterCheck("storage", health.StorageCheck(store.Ping))
	hc.RegisterCheck("listener", health.ListenerCheck(dispatcher.Addr))
	hc.RegisterLivenessCheck("memory", health.MemoryCheck())
	hc.RegisterReadinessCheck("storage", health.StorageCheck(store.Ping))
	hc.RegisterReadinessCheck("listener", health.ListenerCheck(dispatcher.Addr))

	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	hc.Mount(mux)
	return mux
}

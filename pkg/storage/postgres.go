package storage

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/cluso-replicator/pkg/logging"
	"github.com/dd0wney/cluso-replicator/pkg/metrics"
)

// PGExecutor executes statements on PostgreSQL through a connection pool.
// Statements go over the simple query protocol so they run exactly as the
// client typed them and every value comes back as text.
type PGExecutor struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
	logger logging.Logger

	metricsRegistry *metrics.Registry
}

// PGOption configures a PGExecutor
type PGOption func(*PGExecutor)

// WithLogger sets the executor logger
func WithLogger(logger logging.Logger) PGOption {
	return func(e *PGExecutor) { e.logger = logger }
}

// WithMetrics sets the registry that records statements
func WithMetrics(reg *metrics.Registry) PGOption {
	return func(e *PGExecutor) { e.metricsRegistry = reg }
}

// ParsePoolConfig parses a DSN and applies pool limits. An empty DSN falls back
// to the libpq defaults.
func ParsePoolConfig(dsn string, maxConns int32) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	return config, nil
}

// NewPGExecutor connects to PostgreSQL and verifies the connection
func NewPGExecutor(ctx context.Context, dsn string, maxConns int32, opts ...PGOption) (*PGExecutor, error) {
	config, err := ParsePoolConfig(dsn, maxConns)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	e := &PGExecutor{pool: pool, logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logging.Component("storage"))
	return e, nil
}

// Execute implements Executor
func (e *PGExecutor) Execute(ctx context.Context, stmt string) (*Result, error) {
	if e.closed.Load() {
		return nil, ErrStorageClosed
	}
	if strings.TrimSpace(stmt) == "" {
		return nil, NewStatementError("exec", stmt, ErrEmptyStatement)
	}

	start := time.Now()
	var (
		result *Result
		err    error
	)
	if IsReadStatement(stmt) {
		result, err = e.query(ctx, stmt)
	} else {
		result, err = e.exec(ctx, stmt)
	}
	e.record(stmt, err, time.Since(start))
	return result, err
}

func (e *PGExecutor) query(ctx context.Context, stmt string) (*Result, error) {
	rows, err := e.pool.Query(ctx, stmt)
	if err != nil {
		return nil, NewStatementError("query", stmt, err)
	}
	defer rows.Close()

	result := &Result{}
	for _, fd := range rows.FieldDescriptions() {
		result.Columns = append(result.Columns, fd.Name)
	}

	for rows.Next() {
		raw := rows.RawValues()
		row := make([]*string, len(raw))
		for i, v := range raw {
			if v == nil {
				continue
			}
			s := string(v)
			row[i] = &s
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStatementError("query", stmt, err)
	}

	result.RowsAffected = rows.CommandTag().RowsAffected()
	return result, nil
}

func (e *PGExecutor) exec(ctx context.Context, stmt string) (*Result, error) {
	tag, err := e.pool.Exec(ctx, stmt)
	if err != nil {
		return nil, NewStatementError("exec", stmt, err)
	}
	return &Result{RowsAffected: tag.RowsAffected()}, nil
}

func (e *PGExecutor) record(stmt string, err error, d time.Duration) {
	stmtType := StatementType(stmt)
	status := "ok"
	if err != nil {
		status = "error"
		e.logger.Warn("statement failed",
			logging.String("type", stmtType),
			logging.Error(err),
			logging.Latency(d),
		)
	} else {
		e.logger.Debug("statement executed", logging.String("type", stmtType), logging.Latency(d))
	}

	if e.metricsRegistry != nil {
		e.metricsRegistry.RecordStatement(stmtType, status, d)
	}
}

// Ping checks database connectivity
func (e *PGExecutor) Ping(ctx context.Context) error {
	if e.closed.Load() {
		return ErrStorageClosed
	}
	return e.pool.Ping(ctx)
}

// Close closes the database connection pool
func (e *PGExecutor) Close() error {
	if e.closed.CompareAndSwap(false, true) {
		e.pool.Close()
	}
	return nil
}

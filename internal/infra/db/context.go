// Package db implements the resilient Postgres access layer: a lazily created,
// self-healing connection pool, a transactional executor with deadlock retry,
// and the health monitoring around both.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gramflow/internal/observability/metrics"
	"gramflow/internal/resilience/circuitbreaker"
	"gramflow/internal/resilience/failure"
)

// DatabaseContext owns one logical connection pool and its health statistics.
// It is constructed once at process start and passed to every consumer,
// preserving single-instance semantics without hidden package state.
//
// The pool is created lazily on first access and replaced, never reused, once
// it has been marked invalid. Pool-level errors are classified and logged but
// never terminate the pool synchronously; recovery is deferred to the health
// monitor or the next Pool() call.
type DatabaseContext struct {
	cfg     Config
	logger  *slog.Logger
	breaker *circuitbreaker.CircuitBreaker

	mu        sync.Mutex
	db        *sql.DB
	invalid   bool
	createdAt time.Time

	health       *HealthStats
	waiting      atomic.Int64
	connsCreated atomic.Int64

	monitor *Monitor

	// openFn is swapped in tests to hand the context a pre-built pool.
	openFn func(dsn string) (*sql.DB, error)
}

// PoolStats is the diagnostic view of the pool at one instant.
type PoolStats struct {
	TotalCount   int            `json:"total_count"`
	IdleCount    int            `json:"idle_count"`
	WaitingCount int            `json:"waiting_count"`
	Max          int            `json:"max"`
	Min          int            `json:"min"`
	Utilization  float64        `json:"utilization"`
	Health       HealthSnapshot `json:"health"`
	Uptime       time.Duration  `json:"uptime"`
}

// HealthReport is the result of an active health check.
type HealthReport struct {
	Healthy bool           `json:"healthy"`
	Details map[string]any `json:"details"`
}

// NewContext creates a DatabaseContext for the given configuration.
// The pool itself is not created until first access.
func NewContext(cfg Config, logger *slog.Logger) *DatabaseContext {
	return &DatabaseContext{
		cfg:     cfg,
		logger:  logger,
		breaker: circuitbreaker.New(circuitbreaker.PostgresConfig()),
		health:  NewHealthStats(),
		openFn:  openPool,
	}
}

// NewContextWithDB creates a DatabaseContext seeded with an existing pool.
// Used by tests that drive the context against a mocked database.
func NewContextWithDB(cfg Config, logger *slog.Logger, pool *sql.DB) *DatabaseContext {
	c := NewContext(cfg, logger)
	c.db = pool
	c.createdAt = time.Now()
	c.openFn = func(string) (*sql.DB, error) { return pool, nil }
	return c
}

func openPool(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// Pool returns the live pool, lazily constructing one if none exists or the
// existing one has been marked invalid. Construction fails fast when no
// connection string is configured.
func (c *DatabaseContext) Pool() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil && !c.invalid {
		return c.db, nil
	}

	if c.db != nil {
		// Replace, never reuse, a terminated pool. The old pool is closed in
		// the background so concurrent callers holding a reference finish
		// their in-flight work instead of hitting a use-after-close.
		old := c.db
		c.db = nil
		go func() {
			if err := old.Close(); err != nil {
				c.logger.Warn("closing invalidated pool", slog.Any("error", err))
			}
		}()
		metrics.DBPoolRecreations.Inc()
	}

	dsn, err := c.cfg.DSN()
	if err != nil {
		return nil, err
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := c.openFn(dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	pool.SetMaxOpenConns(c.cfg.MaxConns)
	pool.SetMaxIdleConns(c.cfg.MinConns)
	pool.SetConnMaxIdleTime(c.cfg.IdleTimeout)

	c.db = pool
	c.invalid = false
	c.createdAt = time.Now()

	c.logger.Info("connection pool created",
		slog.Int("max_conns", c.cfg.MaxConns),
		slog.Int("min_conns", c.cfg.MinConns),
		slog.Duration("idle_timeout", c.cfg.IdleTimeout),
		slog.Duration("statement_timeout", c.cfg.StatementTimeout))

	return c.db, nil
}

// Invalidate marks the current pool for recreation on next access. It does not
// terminate the pool: callers holding a reference keep working until they
// release it.
func (c *DatabaseContext) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		c.invalid = true
	}
}

// Reset terminates the current pool. The next access creates a fresh one.
func (c *DatabaseContext) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	c.invalid = false
	return err
}

// Close terminates the pool, resets health statistics, and stops the attached
// health monitor. The context remains usable: a later access recreates a pool.
func (c *DatabaseContext) Close() error {
	c.mu.Lock()
	monitor := c.monitor
	c.monitor = nil
	var err error
	if c.db != nil {
		err = c.db.Close()
		c.db = nil
	}
	c.invalid = false
	c.mu.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
	c.health.Reset()
	return err
}

// Health returns the mutable health statistics for this pool.
func (c *DatabaseContext) Health() *HealthStats {
	return c.health
}

// Waiting returns the number of callers currently blocked on a pool slot.
func (c *DatabaseContext) Waiting() int {
	return int(c.waiting.Load())
}

// ConnsCreated returns the cumulative number of connection checkouts, used by
// the health monitor's leak heuristic.
func (c *DatabaseContext) ConnsCreated() int64 {
	return c.connsCreated.Load()
}

// acquire checks a single connection out of the pool, bounded by the configured
// connect timeout. Waiters are served FIFO by database/sql once a slot frees.
func (c *DatabaseContext) acquire(ctx context.Context) (*sql.Conn, error) {
	pool, err := c.Pool()
	if err != nil {
		return nil, err
	}

	acquireCtx := ctx
	var cancel context.CancelFunc
	if c.cfg.ConnectTimeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}

	c.waiting.Add(1)
	metrics.DBWaitingAcquires.Inc()
	conn, err := pool.Conn(acquireCtx)
	c.waiting.Add(-1)
	metrics.DBWaitingAcquires.Dec()

	if err != nil {
		c.health.RecordConnect(false)
		c.observeError("acquire", err)
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	c.health.RecordConnect(true)
	c.connsCreated.Add(1)
	return conn, nil
}

// Query executes a query through the circuit breaker and records its latency.
func (c *DatabaseContext) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	pool, err := c.Pool()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return pool.QueryContext(ctx, query, args...)
	})
	elapsed := time.Since(start)
	c.health.RecordResponseTime(elapsed)
	metrics.RecordOperationDuration("query", elapsed)

	if err != nil {
		c.observeError("query", err)
		return nil, err
	}
	return result.(*sql.Rows), nil
}

// Exec executes a statement through the circuit breaker and records its latency.
func (c *DatabaseContext) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	pool, err := c.Pool()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return pool.ExecContext(ctx, query, args...)
	})
	elapsed := time.Since(start)
	c.health.RecordResponseTime(elapsed)
	metrics.RecordOperationDuration("exec", elapsed)

	if err != nil {
		c.observeError("exec", err)
		return nil, err
	}
	return result.(sql.Result), nil
}

// QueryRow executes a single-row query. The circuit breaker cannot intercept
// the deferred Scan error, so only the happy-path latency is recorded here.
func (c *DatabaseContext) QueryRow(ctx context.Context, query string, args ...any) (*sql.Row, error) {
	pool, err := c.Pool()
	if err != nil {
		return nil, err
	}
	return pool.QueryRowContext(ctx, query, args...), nil
}

// Stats returns the diagnostic snapshot of the pool.
func (c *DatabaseContext) Stats() PoolStats {
	c.mu.Lock()
	pool := c.db
	createdAt := c.createdAt
	c.mu.Unlock()

	stats := PoolStats{
		Max:          c.cfg.MaxConns,
		Min:          c.cfg.MinConns,
		WaitingCount: c.Waiting(),
		Health:       c.health.Snapshot(),
	}
	if pool == nil {
		return stats
	}

	dbStats := pool.Stats()
	stats.TotalCount = dbStats.OpenConnections
	stats.IdleCount = dbStats.Idle
	stats.Uptime = time.Since(createdAt)
	if c.cfg.MaxConns > 0 {
		stats.Utilization = float64(dbStats.InUse) / float64(c.cfg.MaxConns) * 100
	}
	return stats
}

// CheckHealth actively pings the database and reports pool health details.
func (c *DatabaseContext) CheckHealth(ctx context.Context) HealthReport {
	details := map[string]any{
		"breaker_state": c.breaker.State().String(),
	}

	pool, err := c.Pool()
	if err != nil {
		details["error"] = err.Error()
		return HealthReport{Healthy: false, Details: details}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		details["error"] = err.Error()
		c.observeError("ping", err)
		return HealthReport{Healthy: false, Details: details}
	}

	stats := c.Stats()
	details["total_count"] = stats.TotalCount
	details["idle_count"] = stats.IdleCount
	details["waiting_count"] = stats.WaitingCount
	details["utilization"] = stats.Utilization
	return HealthReport{Healthy: !c.breaker.IsOpen(), Details: details}
}

// observeError classifies a pool-level error for logging. It never terminates
// the pool: closing a live pool under concurrent callers risks use-after-close,
// so recovery is left to the health monitor or the next Pool() call.
func (c *DatabaseContext) observeError(operation string, err error) {
	classified := failure.Classify(err)
	c.logger.Warn("database operation failed",
		slog.String("operation", operation),
		slog.String("kind", string(classified.Kind)),
		slog.String("sqlstate", classified.SQLState),
		slog.Bool("retryable", classified.Retryable),
		slog.Any("error", err))
}

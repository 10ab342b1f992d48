package db

import (
	"context"
	"log/slog"
	"time"

	"gramflow/internal/observability/metrics"
)

// Monitor defaults.
const (
	DefaultMonitorInterval   = time.Minute
	DefaultLeakFactor        = 10
	utilizationWarnThreshold = 80.0
)

// Monitor periodically observes a DatabaseContext: it refreshes pool gauges,
// warns on high utilization and suspected connection leaks, and marks a dead
// pool for recreation. It never terminates a pool directly, because other
// callers may still hold a reference to it.
type Monitor struct {
	dbc      *DatabaseContext
	logger   *slog.Logger
	interval time.Duration

	// leakFactor K: warn once cumulative checkouts exceed maxSize * K.
	leakFactor int

	stop chan struct{}
	done chan struct{}
}

// NewMonitor creates a health monitor for the given context and attaches it,
// so DatabaseContext.Close stops the monitor along with the pool.
func NewMonitor(dbc *DatabaseContext, logger *slog.Logger, interval time.Duration, leakFactor int) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	if leakFactor <= 0 {
		leakFactor = DefaultLeakFactor
	}
	m := &Monitor{
		dbc:        dbc,
		logger:     logger,
		interval:   interval,
		leakFactor: leakFactor,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	dbc.mu.Lock()
	dbc.monitor = m
	dbc.mu.Unlock()
	return m
}

// Start runs the monitor loop until the context is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.Check()
			}
		}
	}()
}

// Stop terminates the monitor loop. Safe to call more than once.
func (m *Monitor) Stop() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
}

// Check performs a single observation pass. Exposed so tests and the worker's
// cron schedule can drive it directly.
func (m *Monitor) Check() {
	now := time.Now()
	stats := m.dbc.Stats()
	m.dbc.health.MarkHealthCheck(now)

	metrics.DBConnectionsActive.Set(float64(stats.TotalCount))
	metrics.DBConnectionsIdle.Set(float64(stats.IdleCount))
	metrics.DBPoolUtilization.Set(stats.Utilization)

	// A pool that has served connections but now has none at all, live or
	// idle, is considered dead. Mark it for recreation on next access instead
	// of closing it here.
	if stats.Uptime > 0 && stats.Health.TotalConnections > 0 &&
		stats.TotalCount == 0 && stats.IdleCount == 0 {
		m.logger.Warn("pool has no connections, marking for recreation")
		m.dbc.Invalidate()
	}

	if stats.Utilization > utilizationWarnThreshold {
		m.logger.Warn("pool utilization high",
			slog.Float64("utilization", stats.Utilization),
			slog.Int("total", stats.TotalCount),
			slog.Int("waiting", stats.WaitingCount))
	}

	if created := m.dbc.ConnsCreated(); created > int64(m.dbc.cfg.MaxConns)*int64(m.leakFactor) {
		m.logger.Warn("possible connection leak",
			slog.Int64("connections_created", created),
			slog.Int("max_conns", m.dbc.cfg.MaxConns),
			slog.Int("leak_factor", m.leakFactor))
	}
}

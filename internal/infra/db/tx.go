package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gramflow/internal/observability/metrics"
	"gramflow/internal/observability/tracing"
	"gramflow/internal/resilience/failure"
)

// Transaction retry defaults and bounds.
const (
	DefaultTxTimeout    = 30 * time.Second
	DefaultTxMaxRetries = 5

	txBackoffBase = 100 * time.Millisecond
	txBackoffCap  = 5 * time.Second
	txJitter      = 0.3

	// Adaptive timeout growth: each retry gets 30% more time, capped at 2.5x,
	// with a flat 5s grace after the third attempt for heavy lock contention.
	timeoutGrowth     = 0.3
	timeoutCapFactor  = 2.5
	lateAttemptGrace  = 5 * time.Second
	lateAttemptCutoff = 2
)

// TxOptions configures a call to WithTx.
type TxOptions struct {
	// Timeout is the base adaptive timeout for the work function.
	// Zero means DefaultTxTimeout.
	Timeout time.Duration

	// Isolation is applied to BEGIN only when non-default.
	Isolation sql.IsolationLevel

	// MaxRetries bounds retry attempts after the first.
	// Zero means DefaultTxMaxRetries; negative disables retries.
	MaxRetries int

	// Conn reuses an already-acquired connection instead of checking one out,
	// letting nested units of work share a transaction's connection.
	Conn *sql.Conn

	// Sleep and Rand are injection points for deterministic tests.
	// Nil values use real sleeping and ambient randomness.
	Sleep func(context.Context, time.Duration) error
	Rand  *rand.Rand
}

// WithTx runs fn inside an explicit transaction with adaptive timeout and
// automatic retry on deadlock or serialization failure.
//
// The connection is checked out once, reused across all retry attempts, and
// released exactly once regardless of outcome. Each attempt begins a fresh
// transaction, races fn against the adaptive timeout, then commits on success
// or rolls back on any failure. The timeout is enforced as a context deadline,
// so the driver cancels the statement server-side rather than abandoning it.
//
// Errors that are not deadlock, serialization, or timeout class propagate
// immediately without consuming retry budget. A terminal failure carries the
// transaction id and attempt count.
func WithTx[T any](ctx context.Context, dbc *DatabaseContext, opts TxOptions, fn func(ctx context.Context, tx *sql.Tx) (T, error)) (T, error) {
	var zero T

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTxTimeout
	}
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = DefaultTxMaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}

	txID := uuid.NewString()
	logger := dbc.logger.With(slog.String("tx_id", txID))

	ctx, span := tracing.GetTracer().Start(ctx, "db.with_tx",
		trace.WithAttributes(attribute.String("tx.id", txID)))
	defer span.End()

	conn := opts.Conn
	if conn == nil {
		acquired, err := dbc.acquire(ctx)
		if err != nil {
			return zero, fmt.Errorf("tx %s: %w", txID, err)
		}
		conn = acquired
		defer func() {
			if err := conn.Close(); err != nil {
				logger.Warn("releasing transaction connection", slog.Any("error", err))
			}
		}()
	}

	var sqlOpts *sql.TxOptions
	if opts.Isolation != sql.LevelDefault {
		sqlOpts = &sql.TxOptions{Isolation: opts.Isolation}
	}

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		attemptStart := time.Now()
		result, err := runAttempt(ctx, conn, sqlOpts, adaptiveTimeout(opts.Timeout, attempt), fn)
		dbc.health.RecordResponseTime(time.Since(attemptStart))
		if err == nil {
			if attempt > 0 {
				logger.Info("transaction succeeded after retry", slog.Int("attempt", attempt+1))
			}
			span.SetAttributes(attribute.Int("tx.attempts", attempt+1))
			return result, nil
		}

		lastErr = err
		classified := failure.Classify(err)
		switch classified.Kind {
		case failure.KindDeadlock, failure.KindSerialization:
			dbc.health.RecordDeadlock()
			metrics.DBDeadlocksTotal.Inc()
		case failure.KindTimeout:
			dbc.health.RecordTransactionTimeout()
			metrics.DBTransactionTimeouts.Inc()
		default:
			// Not a transient transaction failure: propagate immediately.
			return zero, fmt.Errorf("tx %s (attempt %d): %w", txID, attempt+1, err)
		}

		if attempt == opts.MaxRetries {
			break
		}

		delay := txBackoff(attempt+1, opts.Rand)
		logger.Warn("transaction failed, retrying",
			slog.String("kind", string(classified.Kind)),
			slog.String("sqlstate", classified.SQLState),
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", opts.MaxRetries),
			slog.Duration("delay", delay),
			slog.Any("error", err))

		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("tx %s: retry aborted: %w", txID, err)
		}
	}

	return zero, fmt.Errorf("tx %s failed after %d attempts: %w", txID, opts.MaxRetries+1, lastErr)
}

// runAttempt executes one BEGIN/fn/COMMIT cycle under the attempt's deadline.
func runAttempt[T any](ctx context.Context, conn *sql.Conn, sqlOpts *sql.TxOptions, timeout time.Duration, fn func(ctx context.Context, tx *sql.Tx) (T, error)) (T, error) {
	var zero T

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	tx, err := conn.BeginTx(attemptCtx, sqlOpts)
	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("begin_failed").Observe(time.Since(start).Seconds())
		return zero, fmt.Errorf("begin: %w", err)
	}

	result, err := fn(attemptCtx, tx)
	if err == nil {
		err = tx.Commit()
		if err != nil {
			err = fmt.Errorf("commit: %w", err)
		}
	}

	elapsed := time.Since(start)
	if err == nil {
		metrics.DBTransactionDuration.WithLabelValues("commit").Observe(elapsed.Seconds())
		return result, nil
	}

	if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
	}
	metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(elapsed.Seconds())
	return zero, err
}

// adaptiveTimeout returns the timeout for the zero-based retry attempt n.
// Later attempts get proportionally more time to ride out lock contention:
// min(base * (1 + 0.3n), base * 2.5), plus a flat 5s grace once n > 2.
func adaptiveTimeout(base time.Duration, n int) time.Duration {
	scaled := time.Duration(float64(base) * (1 + timeoutGrowth*float64(n)))
	capped := time.Duration(float64(base) * timeoutCapFactor)
	if scaled > capped {
		scaled = capped
	}
	if n > lateAttemptCutoff {
		scaled += lateAttemptGrace
	}
	return scaled
}

// txBackoff returns the delay before the n-th retry (1-based):
// min(100ms * 2^(n-1), 5s) with ±30% jitter.
func txBackoff(n int, rnd *rand.Rand) time.Duration {
	if n < 1 {
		n = 1
	}
	delay := txBackoffBase << (n - 1)
	if delay > txBackoffCap || delay <= 0 {
		delay = txBackoffCap
	}

	var u float64
	if rnd != nil {
		u = rnd.Float64()
	} else {
		u = rand.Float64() // #nosec G404 -- jitter does not need crypto randomness
	}
	jitter := 1 + txJitter*(2*u-1)
	return time.Duration(float64(delay) * jitter)
}

// sleepWithContext waits for the delay or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

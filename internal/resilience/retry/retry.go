// Package retry wraps arbitrary operations with bounded exponential backoff,
// short-circuiting non-retryable failures and escalating exhausted ones to a
// dead-letter sink.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gramflow/internal/observability/metrics"
	"gramflow/internal/observability/tracing"
	"gramflow/internal/resilience/deadletter"
	"gramflow/internal/resilience/failure"
)

// DefaultAttempts is the total attempt budget when Options.Attempts is zero.
const DefaultAttempts = 3

// Options configures a call to Do.
type Options struct {
	// Attempts is the total attempt budget including the first try.
	// Zero means DefaultAttempts.
	Attempts int

	// Payload travels with the dead-letter entry when the budget is exhausted.
	Payload any

	// Sink receives the dead-letter entry on exhaustion. Nil disables
	// dead-lettering; exhaustion still fails the call.
	Sink deadletter.Sink

	// Logger overrides the default logger.
	Logger *slog.Logger

	// Rand and Sleep are injection points for deterministic tests.
	Rand  Rand
	Sleep func(context.Context, time.Duration) error
}

// Do executes fn under the retry policy identified by key.
//
// A policy error — one carrying an explicit no-retry marker or a status code
// below 500 — is re-thrown immediately on first occurrence: it consumes no
// retry budget and never reaches the dead-letter sink. Retryable failures are
// retried with randomized exponential backoff until the budget is exhausted,
// at which point the entry is pushed to the sink (best-effort) and the
// original error is returned.
func Do[T any](ctx context.Context, key string, opts Options, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}

	ctx, span := tracing.GetTracer().Start(ctx, "retry.do",
		trace.WithAttributes(attribute.String("retry.key", key)))
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			metrics.RecordRetry(key, attempt)
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retry",
					slog.String("key", key),
					slog.Int("attempt", attempt))
			}
			span.SetAttributes(attribute.Int("retry.attempts", attempt))
			return result, nil
		}

		if failure.IsPolicy(err) {
			// Client/business rejection: retrying would only repeat it, and
			// dead-lettering it would bury a caller problem in the ops queue.
			logger.Warn("non-retryable policy error",
				slog.String("key", key),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return zero, err
		}

		lastErr = err
		if attempt == attempts {
			break
		}

		delay := Backoff(attempt-1, opts.Rand)
		logger.Warn("operation failed, retrying",
			slog.String("key", key),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", delay),
			slog.Any("error", err))

		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s: retry aborted: %w", key, err)
		}
	}

	metrics.RecordExhausted(key)
	if opts.Sink != nil {
		entry := deadletter.NewEntry(key, opts.Payload)
		if err := opts.Sink.Push(ctx, entry); err != nil {
			// Best-effort: a failing sink must not mask the original error.
			metrics.DLQPushFailures.Inc()
			logger.Error("dead-letter push failed",
				slog.String("key", key),
				slog.Any("error", err))
		}
		metrics.RecordDeadLetter(key)
	}

	return zero, fmt.Errorf("%s: %d attempts exhausted: %w", key, attempts, lastErr)
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

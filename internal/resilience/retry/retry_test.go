package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gramflow/internal/resilience/deadletter"
	"gramflow/internal/resilience/failure"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), "fetch.profile", Options{Sleep: noSleep},
		func(context.Context) (string, error) {
			calls++
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), "publish.post", Options{Attempts: 4, Sleep: noSleep},
		func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("connection reset by peer")
			}
			return 99, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 99, got)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsBudgetAndDeadLetters(t *testing.T) {
	sink := deadletter.NewMemorySink(10)
	boom := errors.New("upstream unavailable")

	calls := 0
	_, err := Do(context.Background(), "sync.followers", Options{
		Attempts: 2,
		Payload:  map[string]any{"account": "acct-1"},
		Sink:     sink,
		Sleep:    noSleep,
	}, func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "2 attempts exhausted")
	assert.Equal(t, 2, calls)

	require.Equal(t, 1, sink.Len())
	entry := sink.Entries()[0]
	assert.Equal(t, "sync.followers", entry.Reason)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, deadletter.SeverityHigh, entry.Severity)
	assert.Equal(t, map[string]any{"account": "acct-1"}, entry.Payload)
}

func TestDo_PolicyErrorShortCircuits(t *testing.T) {
	sink := deadletter.NewMemorySink(10)
	rejection := &failure.PolicyError{Status: 422, Message: "caption too long"}

	calls := 0
	_, err := Do(context.Background(), "publish.post", Options{
		Attempts: 5,
		Sink:     sink,
		Sleep:    noSleep,
	}, func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, rejection
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, rejection)
	assert.Equal(t, 1, calls, "policy errors must not consume retry budget")
	assert.Equal(t, 0, sink.Len(), "policy errors must not be dead-lettered")
}

func TestDo_SinkFailureDoesNotMaskOriginalError(t *testing.T) {
	sink := deadletter.NewMemorySink(10)
	sink.FailWith(deadletter.ErrSinkFull)
	boom := errors.New("still broken")

	_, err := Do(context.Background(), "sync.media", Options{
		Attempts: 1,
		Sink:     sink,
		Sleep:    noSleep,
	}, func(context.Context) (struct{}, error) {
		return struct{}{}, boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, deadletter.ErrSinkFull)
	assert.Equal(t, 0, sink.Len())
}

func TestDo_NilSinkStillFails(t *testing.T) {
	boom := errors.New("no luck")
	_, err := Do(context.Background(), "sync.media", Options{Attempts: 1, Sleep: noSleep},
		func(context.Context) (struct{}, error) {
			return struct{}{}, boom
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestDo_ZeroAttemptsUsesDefault(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), "any", Options{Sleep: noSleep},
		func(context.Context) (struct{}, error) {
			calls++
			return struct{}{}, errors.New("nope")
		})

	require.Error(t, err)
	assert.Equal(t, DefaultAttempts, calls)
}

func TestDo_ContextCancelAbortsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := Do(ctx, "slow.op", Options{Attempts: 5},
		func(context.Context) (struct{}, error) {
			calls++
			cancel()
			return struct{}{}, errors.New("transient")
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

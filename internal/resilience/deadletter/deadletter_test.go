package deadletter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"
)

func TestNewEntry(t *testing.T) {
	before := time.Now().UTC()
	entry := NewEntry("publish.post", map[string]any{"post_id": "p-1"})
	after := time.Now().UTC()

	_, err := uuid.Parse(entry.ID)
	require.NoError(t, err)

	want := Entry{
		Reason:   "publish.post",
		Payload:  map[string]any{"post_id": "p-1"},
		Severity: SeverityHigh,
		Category: "other",
	}
	if diff := cmp.Diff(want, entry, cmpopts.IgnoreFields(Entry{}, "ID", "EnqueuedAt")); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}

	assert.False(t, entry.EnqueuedAt.Before(before))
	assert.False(t, entry.EnqueuedAt.After(after))
	assert.Equal(t, time.UTC, entry.EnqueuedAt.Location())
}

func TestNewEntry_UniqueIDs(t *testing.T) {
	a := NewEntry("r", nil)
	b := NewEntry("r", nil)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestMemorySink_PushAndRead(t *testing.T) {
	sink := NewMemorySink(0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, sink.Push(ctx, NewEntry(fmt.Sprintf("op-%d", i), nil)))
	}

	assert.Equal(t, 3, sink.Len())
	entries := sink.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "op-0", entries[0].Reason)
	assert.Equal(t, "op-2", entries[2].Reason)
}

func TestMemorySink_DropsOldestAtLimit(t *testing.T) {
	sink := NewMemorySink(2)
	ctx := context.Background()

	require.NoError(t, sink.Push(ctx, NewEntry("first", nil)))
	require.NoError(t, sink.Push(ctx, NewEntry("second", nil)))
	require.NoError(t, sink.Push(ctx, NewEntry("third", nil)))

	entries := sink.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Reason)
	assert.Equal(t, "third", entries[1].Reason)
}

func TestMemorySink_FailWith(t *testing.T) {
	sink := NewMemorySink(0)
	ctx := context.Background()

	sink.FailWith(ErrSinkFull)
	err := sink.Push(ctx, NewEntry("op", nil))
	assert.ErrorIs(t, err, ErrSinkFull)
	assert.Equal(t, 0, sink.Len())

	sink.FailWith(nil)
	require.NoError(t, sink.Push(ctx, NewEntry("op", nil)))
	assert.Equal(t, 1, sink.Len())
}

func TestMemorySink_EntriesReturnsCopy(t *testing.T) {
	sink := NewMemorySink(0)
	require.NoError(t, sink.Push(context.Background(), NewEntry("op", nil)))

	entries := sink.Entries()
	entries[0].Reason = "mutated"

	assert.Equal(t, "op", sink.Entries()[0].Reason)
}

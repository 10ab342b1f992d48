package deadletter

import (
	"context"
	"fmt"
	"sync"
)

// MemorySink is an in-memory bounded sink used in tests and local development.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
	failErr error
}

// NewMemorySink creates a sink holding at most limit entries.
// A non-positive limit means unbounded.
func NewMemorySink(limit int) *MemorySink {
	return &MemorySink{limit: limit}
}

// Push appends the entry, dropping the oldest when the limit is reached.
func (s *MemorySink) Push(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	if s.limit > 0 && len(s.entries) >= s.limit {
		s.entries = s.entries[1:]
	}
	s.entries = append(s.entries, entry)
	return nil
}

// Entries returns a copy of the stored entries.
func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of stored entries.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// FailWith makes every subsequent Push return err. Pass nil to heal the sink.
// Used by tests asserting that sink failures stay contained.
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

var _ Sink = (*MemorySink)(nil)

// ErrSinkFull is a sentinel tests can inject via FailWith.
var ErrSinkFull = fmt.Errorf("dead-letter sink full")

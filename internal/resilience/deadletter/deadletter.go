// Package deadletter persists permanently failed operation payloads for
// offline inspection. Entries are created only after an operation exhausts its
// retry budget; they are append-only and owned by the sink thereafter.
package deadletter

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Severity grades how urgently a dead-lettered operation needs attention.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Entry is one dead-lettered operation. Never mutated after creation.
type Entry struct {
	ID         string    `json:"id"`
	Reason     string    `json:"reason"`
	Payload    any       `json:"payload"`
	Severity   Severity  `json:"severity"`
	Category   string    `json:"category"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewEntry builds an entry for an operation that exhausted its retry budget.
// Retry-executor escalations are always high severity, category "other".
func NewEntry(reason string, payload any) Entry {
	return Entry{
		ID:         uuid.NewString(),
		Reason:     reason,
		Payload:    payload,
		Severity:   SeverityHigh,
		Category:   "other",
		EnqueuedAt: time.Now().UTC(),
	}
}

// Sink receives dead-letter entries. Push returns an error so callers can
// observe sink failures in tests; the retry executor treats pushes as
// best-effort and swallows the error after logging it.
type Sink interface {
	Push(ctx context.Context, entry Entry) error
}

package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"gramflow/internal/infra/db"
)

// Default write throttle: a retry storm must not amplify into a write storm
// against the same struggling database.
const (
	defaultPushRate  = 10 // entries per second
	defaultPushBurst = 20
)

// PostgresSink persists dead-letter entries in the dead_letters table.
// Writes go through the resilient DatabaseContext and are rate limited.
type PostgresSink struct {
	dbc     *db.DatabaseContext
	logger  *slog.Logger
	limiter *rate.Limiter
}

// NewPostgresSink creates a durable sink backed by the given database context.
func NewPostgresSink(dbc *db.DatabaseContext, logger *slog.Logger) *PostgresSink {
	return &PostgresSink{
		dbc:     dbc,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(defaultPushRate), defaultPushBurst),
	}
}

// Push inserts the entry. When the write throttle is saturated the entry is
// dropped with an error rather than queueing behind a failing database.
func (s *PostgresSink) Push(ctx context.Context, entry Entry) error {
	if !s.limiter.Allow() {
		return fmt.Errorf("dead-letter push throttled: %s", entry.Reason)
	}

	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		// Persist the entry anyway; a broken payload is exactly the kind of
		// thing offline inspection is for.
		payload = []byte(fmt.Sprintf("%q", fmt.Sprint(entry.Payload)))
		s.logger.Warn("dead-letter payload not JSON-serializable",
			slog.String("reason", entry.Reason),
			slog.Any("error", err))
	}

	const query = `
INSERT INTO dead_letters (id, reason, payload, severity, category, enqueued_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.dbc.Exec(ctx, query,
		entry.ID, entry.Reason, payload, string(entry.Severity), entry.Category, entry.EnqueuedAt,
	); err != nil {
		return fmt.Errorf("push dead letter %s: %w", entry.Reason, err)
	}
	return nil
}

// Prune deletes entries older than the given age and reports how many went.
func (s *PostgresSink) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	const query = `DELETE FROM dead_letters WHERE enqueued_at < $1`
	res, err := s.dbc.Exec(ctx, query, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("prune dead letters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune dead letters: %w", err)
	}
	return n, nil
}

var _ Sink = (*PostgresSink)(nil)

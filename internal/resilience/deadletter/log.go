package deadletter

import (
	"context"
	"log/slog"
)

// LogSink writes entries to the structured log. It is the fallback when no
// durable sink is configured; entries survive only as long as log retention.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that records entries via the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Push logs the entry at error level.
func (s *LogSink) Push(_ context.Context, entry Entry) error {
	s.logger.Error("dead-lettered operation",
		slog.String("id", entry.ID),
		slog.String("reason", entry.Reason),
		slog.String("severity", string(entry.Severity)),
		slog.String("category", entry.Category),
		slog.Time("enqueued_at", entry.EnqueuedAt),
		slog.Any("payload", entry.Payload))
	return nil
}

var _ Sink = (*LogSink)(nil)

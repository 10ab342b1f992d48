package worker

import (
	"context"
	"log/slog"
	"time"

	"gramflow/internal/resilience/deadletter"
)

// Pruner removes dead-letter entries older than the retention window.
// It runs on the worker's cron schedule.
type Pruner struct {
	sink   *deadletter.PostgresSink
	logger *slog.Logger
	ttl    time.Duration
}

// NewPruner creates a dead-letter pruner with the given retention window.
func NewPruner(sink *deadletter.PostgresSink, logger *slog.Logger, ttl time.Duration) *Pruner {
	return &Pruner{sink: sink, logger: logger, ttl: ttl}
}

// Run executes a single pruning pass.
func (p *Pruner) Run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	pruned, err := p.sink.Prune(runCtx, p.ttl)
	if err != nil {
		p.logger.Error("dead-letter prune failed", slog.Any("error", err))
		return
	}
	p.logger.Info("dead-letter prune complete",
		slog.Int64("pruned", pruned),
		slog.Duration("ttl", p.ttl))
}

package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"gramflow/internal/infra/db"
	"gramflow/internal/resilience/deadletter"
	"gramflow/internal/resilience/retry"
)

// Job is one queued unit of work claimed from the outbox table.
type Job struct {
	ID      string
	Kind    string
	Payload []byte
}

// Dispatcher delivers a claimed job to its destination (webhook endpoint,
// message broker, downstream API). Implementations signal a permanent
// client-side rejection with a failure.PolicyError so the drain loop neither
// retries nor dead-letters it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// Drain claims queued jobs from the outbox in transactional batches and
// dispatches each one through the generic retry executor. Jobs whose retry
// budget is exhausted are dead-lettered by the executor and marked failed.
type Drain struct {
	dbc        *db.DatabaseContext
	dispatcher Dispatcher
	sink       deadletter.Sink
	logger     *slog.Logger
	interval   time.Duration
	batch      int
	attempts   int
}

// NewDrain creates an outbox drain loop.
func NewDrain(dbc *db.DatabaseContext, dispatcher Dispatcher, sink deadletter.Sink, logger *slog.Logger, cfg Config) *Drain {
	return &Drain{
		dbc:        dbc,
		dispatcher: dispatcher,
		sink:       sink,
		logger:     logger,
		interval:   cfg.DrainInterval,
		batch:      cfg.DrainBatch,
		attempts:   cfg.DispatchAttempts,
	}
}

// Run processes batches until the context is cancelled.
func (d *Drain) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := d.DrainOnce(ctx); err != nil {
				d.logger.Error("outbox drain pass failed", slog.Any("error", err))
			} else if n > 0 {
				d.logger.Debug("outbox drain pass complete", slog.Int("jobs", n))
			}
		}
	}
}

// DrainOnce claims and dispatches a single batch. Returns the number of jobs
// processed.
func (d *Drain) DrainOnce(ctx context.Context) (int, error) {
	jobs, err := d.claim(ctx)
	if err != nil {
		return 0, err
	}

	for _, job := range jobs {
		d.dispatch(ctx, job)
	}
	return len(jobs), nil
}

// claim moves up to batch queued jobs into the processing state and returns
// them. SKIP LOCKED keeps concurrent workers from fighting over rows.
func (d *Drain) claim(ctx context.Context) ([]Job, error) {
	return db.WithTx(ctx, d.dbc, db.TxOptions{}, func(ctx context.Context, tx *sql.Tx) ([]Job, error) {
		const query = `
UPDATE outbox_jobs
SET status = 'processing', updated_at = now()
WHERE id IN (
    SELECT id FROM outbox_jobs
    WHERE status = 'queued'
    ORDER BY created_at ASC
    LIMIT $1
    FOR UPDATE SKIP LOCKED
)
RETURNING id, kind, payload`
		rows, err := tx.QueryContext(ctx, query, d.batch)
		if err != nil {
			return nil, fmt.Errorf("claim jobs: %w", err)
		}
		defer func() { _ = rows.Close() }()

		var jobs []Job
		for rows.Next() {
			var job Job
			if err := rows.Scan(&job.ID, &job.Kind, &job.Payload); err != nil {
				return nil, fmt.Errorf("claim jobs: %w", err)
			}
			jobs = append(jobs, job)
		}
		return jobs, rows.Err()
	})
}

// dispatch delivers one job with retries, then records its terminal state.
func (d *Drain) dispatch(ctx context.Context, job Job) {
	key := "job." + job.Kind
	_, err := retry.Do(ctx, key, retry.Options{
		Attempts: d.attempts,
		Payload:  map[string]any{"job_id": job.ID, "kind": job.Kind, "payload": string(job.Payload)},
		Sink:     d.sink,
		Logger:   d.logger,
	}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.dispatcher.Dispatch(ctx, job)
	})

	status := "done"
	if err != nil {
		status = "failed"
	}
	if mErr := d.mark(ctx, job.ID, status); mErr != nil {
		d.logger.Error("failed to record job outcome",
			slog.String("job_id", job.ID),
			slog.String("status", status),
			slog.Any("error", mErr))
	}
}

func (d *Drain) mark(ctx context.Context, jobID, status string) error {
	const query = `UPDATE outbox_jobs SET status = $2, updated_at = now() WHERE id = $1`
	_, err := d.dbc.Exec(ctx, query, jobID, status)
	return err
}

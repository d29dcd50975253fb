package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-doclife/internal/jobs"
)

// KeyPurger removes idempotency keys older than a retention window.
type KeyPurger interface {
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyPurgeJob processes TaskIdempotencyPurge.
type IdempotencyPurgeJob struct {
	Purger    KeyPurger
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIdempotencyPurgeJob initialises the purge handler.
func NewIdempotencyPurgeJob(purger KeyPurger, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyPurgeJob {
	return &IdempotencyPurgeJob{Purger: purger, Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle deletes expired keys.
func (j *IdempotencyPurgeJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Purger == nil {
		return errors.New("idempotency purge: handler not configured")
	}
	var payload IdempotencyPurgePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Retention <= 0 {
		payload.Retention = j.Retention
	}
	// Keys younger than an hour are never purged.
	if payload.Retention < time.Hour {
		payload.Retention = time.Hour
	}
	run := j.Metrics.Start(TaskIdempotencyPurge)
	defer func() {
		err = run.Finish(err)
	}()

	removed, err := j.Purger.Purge(ctx, payload.Retention)
	if err != nil {
		return err
	}
	j.Metrics.AddPurged(removed)
	if j.Logger != nil {
		j.Logger.Info("idempotency keys purged", slog.Int64("removed", removed), slog.Duration("retention", payload.Retention))
	}
	return nil
}

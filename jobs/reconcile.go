package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-doclife/internal/jobs"
	"github.com/odyssey-erp/odyssey-doclife/internal/lifecycle"
	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

// AttemptReconciler re-runs the void of a failed attempt.
type AttemptReconciler interface {
	Reconcile(ctx context.Context, attemptID uuid.UUID) (lifecycle.Attempt, error)
}

// ReconcileJob processes TaskReconcileAttempt.
type ReconcileJob struct {
	Reconciler AttemptReconciler
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewReconcileJob initialises the reconcile handler.
func NewReconcileJob(reconciler AttemptReconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Reconciler: reconciler, Logger: logger, Metrics: metrics}
}

// Handle reconciles one attempt. Unknown attempts and attempts no longer awaiting
// reconciliation are dropped without retry.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Reconciler == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.AttemptID == uuid.Nil {
		return asynq.SkipRetry
	}
	run := j.Metrics.Start(TaskReconcileAttempt)
	defer func() {
		err = run.Finish(err)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("attempt_id", payload.AttemptID.String()))

	attempt, err := j.Reconciler.Reconcile(ctx, payload.AttemptID)
	switch {
	case err == nil:
		logger.Info("reconcile task done", slog.Int64("document_id", attempt.DocumentID))
		return nil
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrInvalidTransition):
		logger.Warn("reconcile task dropped", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		logger.Error("reconcile task failed", slog.Any("error", err))
		return err
	}
}

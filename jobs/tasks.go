package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries operator-triggered reconciliation.
	QueueCritical = "critical"

	// TaskCompensationScan reports failed and stale finalize attempts.
	TaskCompensationScan = "lifecycle:compensation_scan"
	// TaskReconcileAttempt re-runs the void of one failed attempt.
	TaskReconcileAttempt = "lifecycle:reconcile"
	// TaskIdempotencyPurge removes expired idempotency keys.
	TaskIdempotencyPurge = "idempotency:purge"
)

// CompensationScanPayload carries the staleness threshold of a scan run.
type CompensationScanPayload struct {
	StaleAfter time.Duration `json:"stale_after"`
}

// NewCompensationScanTask constructs the scan task.
func NewCompensationScanTask(staleAfter time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(CompensationScanPayload{StaleAfter: staleAfter})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCompensationScan, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

// ReconcilePayload names the attempt to reconcile.
type ReconcilePayload struct {
	AttemptID uuid.UUID `json:"attempt_id"`
}

// NewReconcileTask constructs a reconcile task. The task id dedupes repeated requests
// for the same attempt while one is still queued.
func NewReconcileTask(attemptID uuid.UUID) (*asynq.Task, error) {
	body, err := json.Marshal(ReconcilePayload{AttemptID: attemptID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileAttempt, body,
		asynq.Queue(QueueCritical),
		asynq.TaskID("reconcile:"+attemptID.String()),
		asynq.MaxRetry(5),
	), nil
}

// IdempotencyPurgePayload carries the retention window.
type IdempotencyPurgePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyPurgeTask constructs the purge task.
func NewIdempotencyPurgeTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyPurgePayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyPurge, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

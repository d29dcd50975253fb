package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-doclife/internal/jobs"
	"github.com/odyssey-erp/odyssey-doclife/internal/lifecycle"
)

// AttemptScanner lists attempts that need an operator.
type AttemptScanner interface {
	ScanAttempts(ctx context.Context, staleAfter time.Duration) (lifecycle.ScanReport, error)
}

// CompensationScanJob publishes failed and stale finalize attempts. It only reports;
// voiding stays an operator decision.
type CompensationScanJob struct {
	Scanner    AttemptScanner
	StaleAfter time.Duration
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewCompensationScanJob initialises the scan handler.
func NewCompensationScanJob(scanner AttemptScanner, staleAfter time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *CompensationScanJob {
	return &CompensationScanJob{Scanner: scanner, StaleAfter: staleAfter, Logger: logger, Metrics: metrics}
}

// Handle executes one scan.
func (j *CompensationScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Scanner == nil {
		return errors.New("compensation scan: handler not configured")
	}
	var payload CompensationScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.StaleAfter <= 0 {
		payload.StaleAfter = j.StaleAfter
	}
	if payload.StaleAfter <= 0 {
		payload.StaleAfter = 15 * time.Minute
	}

	run := j.Metrics.Start(TaskCompensationScan)
	defer func() {
		err = run.Finish(err)
	}()

	report, err := j.Scanner.ScanAttempts(ctx, payload.StaleAfter)
	if err != nil {
		j.logger().Error("compensation scan failed", slog.Any("error", err))
		return err
	}
	j.Metrics.SetPendingAttempts(string(lifecycle.AttemptCompensationFailed), len(report.Failed))
	j.Metrics.SetPendingAttempts(string(lifecycle.AttemptStarted), len(report.Stale))
	j.Metrics.SetPendingAttempts(string(lifecycle.AttemptReversalIncomplete), len(report.Incomplete))
	j.logger().Info("compensation scan completed",
		slog.Int("failed", len(report.Failed)),
		slog.Int("stale", len(report.Stale)),
		slog.Int("incomplete", len(report.Incomplete)),
		slog.Duration("stale_after", payload.StaleAfter))
	return nil
}

func (j *CompensationScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

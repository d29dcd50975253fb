package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-doclife/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client     *asynq.Client
	inspector  *asynq.Inspector
	staleAfter time.Duration
	retention  time.Duration
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string, staleAfter, retention time.Duration) (*JobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{
		client:     asynq.NewClient(opts),
		inspector:  asynq.NewInspector(opts),
		staleAfter: staleAfter,
		retention:  retention,
	}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// BuildTask maps a job name from the command line to its task.
func (c *JobsCLI) BuildTask(name string, args []string) (*asynq.Task, error) {
	switch name {
	case jobs.TaskCompensationScan, "scan":
		return jobs.NewCompensationScanTask(c.staleAfter)
	case jobs.TaskIdempotencyPurge, "purge":
		return jobs.NewIdempotencyPurgeTask(c.retention)
	case jobs.TaskReconcileAttempt, "reconcile":
		if len(args) == 0 {
			return nil, errors.New("jobs cli: reconcile needs an attempt id")
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return nil, fmt.Errorf("jobs cli: attempt id: %w", err)
		}
		return jobs.NewReconcileTask(id)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, args []string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := c.BuildTask(name, args)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueues reports metrics for every worker queue.
func (c *JobsCLI) InspectQueues(ctx context.Context) ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	var out []QueueStats
	for _, queue := range []string{jobs.QueueCritical, jobs.QueueDefault} {
		info, err := c.inspector.GetQueueInfo(queue)
		if errors.Is(err, asynq.ErrQueueNotFound) {
			out = append(out, QueueStats{Queue: queue})
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, QueueStats{
			Queue:     queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
		})
	}
	return out, nil
}

// Run executes `jobs trigger <name> [args]` or `jobs stats`.
func (c *JobsCLI) Run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: odyssey jobs (trigger <scan|purge|reconcile <attempt-id>> | stats)")
	}
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("usage: odyssey jobs trigger <scan|purge|reconcile <attempt-id>>")
		}
		info, err := c.Trigger(ctx, args[1], args[2:])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return err
	case "stats":
		stats, err := c.InspectQueues(ctx)
		if err != nil {
			return err
		}
		for _, s := range stats {
			if _, err := fmt.Fprintf(out, "%-9s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("jobs cli: unknown command %s", args[0])
	}
}

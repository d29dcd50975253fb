package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-doclife/jobs"
	_ "github.com/odyssey-erp/odyssey-doclife/testing"
)

func TestBuildTaskMapsAliases(t *testing.T) {
	c := &JobsCLI{staleAfter: 10 * time.Minute, retention: time.Hour}

	task, err := c.BuildTask("scan", nil)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskCompensationScan, task.Type())
	require.JSONEq(t, `{"stale_after":600000000000}`, string(task.Payload()))

	task, err = c.BuildTask(jobs.TaskIdempotencyPurge, nil)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskIdempotencyPurge, task.Type())

	id := uuid.New()
	task, err = c.BuildTask("reconcile", []string{id.String()})
	require.NoError(t, err)
	require.Contains(t, string(task.Payload()), id.String())

	_, err = c.BuildTask("reconcile", nil)
	require.Error(t, err)
	_, err = c.BuildTask("reconcile", []string{"not-a-uuid"})
	require.Error(t, err)
	_, err = c.BuildTask("anomaly", nil)
	require.Error(t, err)
}

func TestRunRejectsBadUsage(t *testing.T) {
	c := &JobsCLI{}
	var out bytes.Buffer
	require.Error(t, c.Run(context.Background(), nil, &out))
	require.Error(t, c.Run(context.Background(), []string{"trigger"}, &out))
	require.Error(t, c.Run(context.Background(), []string{"explode"}, &out))
	require.Error(t, c.Run(context.Background(), []string{"trigger", "scan"}, &out))
}

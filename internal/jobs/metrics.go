// Package jobmetrics instruments the doclife asynq tasks.
package jobmetrics

import (
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels of a task run.
const (
	ResultSuccess = "success"
	ResultSkipped = "skipped"
	ResultFailure = "failure"
)

// Metrics holds the task collectors and the compensation backlog gauges.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	pending  *prometheus.GaugeVec
	purged   prometheus.Counter
}

// NewMetrics builds the collectors and registers them when registerer is non-nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_total",
			Help: "Doclife task runs by task type and result.",
		}, []string{"task", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_job_duration_seconds",
			Help:    "Doclife task run time in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"task"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "odyssey_lifecycle_attempts_pending",
			Help: "Finalize attempts needing attention, by attempt status.",
		}, []string{"status"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_idempotency_keys_purged_total",
			Help: "Idempotency keys removed after retention.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.runs, m.duration, m.pending, m.purged)
	}
	return m
}

// Run times a single task execution.
type Run struct {
	metrics *Metrics
	task    string
	start   time.Time
}

// Start begins timing task. A nil Metrics yields a Run that records nothing.
func (m *Metrics) Start(task string) *Run {
	return &Run{metrics: m, task: task, start: time.Now()}
}

// Finish records the run and hands err back unchanged. Errors wrapping
// asynq.SkipRetry count as skipped, not failed.
func (r *Run) Finish(err error) error {
	if r == nil || r.metrics == nil {
		return err
	}
	r.metrics.runs.WithLabelValues(r.task, Result(err)).Inc()
	r.metrics.duration.WithLabelValues(r.task).Observe(time.Since(r.start).Seconds())
	return err
}

// Result maps a handler error to its result label.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, asynq.SkipRetry):
		return ResultSkipped
	default:
		return ResultFailure
	}
}

// SetPendingAttempts publishes how many finalize attempts wait on an operator,
// per attempt status.
func (m *Metrics) SetPendingAttempts(status string, count int) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(status).Set(float64(count))
}

// AddPurged counts idempotency keys removed by retention.
func (m *Metrics) AddPurged(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.purged.Add(float64(count))
}

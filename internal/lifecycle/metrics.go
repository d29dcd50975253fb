package lifecycle

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

// Metrics counts transitions and compensation outcomes.
type Metrics struct {
	transitions   *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	compensations *prometheus.CounterVec
}

// NewMetrics registers lifecycle collectors. A nil registerer disables metrics.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		return nil
	}
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_lifecycle_transitions_total",
			Help: "Document transitions by type, action and outcome.",
		}, []string{"type", "action", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_lifecycle_transition_duration_seconds",
			Help:    "Duration of document transitions including remote calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_lifecycle_compensations_total",
			Help: "Compensations of failed finalize attempts by outcome.",
		}, []string{"outcome"}),
	}
	registerer.MustRegister(m.transitions, m.duration, m.compensations)
	return m
}

func (m *Metrics) observe(docType string, action Action, start time.Time, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(docType, string(action), outcome(err)).Inc()
	m.duration.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())
}

func (m *Metrics) compensated(ok bool) {
	if m == nil {
		return
	}
	label := "voided"
	if !ok {
		label = "failed"
	}
	m.compensations.WithLabelValues(label).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, shared.ErrPartialCompensation):
		return "partial_compensation"
	case errors.Is(err, shared.ErrDependency):
		return "dependency_failure"
	case errors.Is(err, shared.ErrValidation):
		return "validation"
	case errors.Is(err, shared.ErrInvalidTransition), errors.Is(err, shared.ErrLocked):
		return "conflict"
	default:
		return "error"
	}
}

package orchestrator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the orchestration engine.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	StepRetriesTotal   *prometheus.CounterVec
	CompensationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers orchestrator metrics. Registration
// happens once per process; subsequent calls return the same instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "orchestrator_runs_total",
					Help: "Total orchestration runs by terminal state",
				},
				[]string{"state"},
			),
			RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "orchestrator_run_duration_seconds",
				Help:    "Duration of orchestration runs",
				Buckets: prometheus.DefBuckets,
			}),
			StepRetriesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "orchestrator_step_retries_total",
					Help: "Total write step retries by step",
				},
				[]string{"step"},
			),
			CompensationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "orchestrator_compensations_total",
					Help: "Total compensation steps by outcome",
				},
				[]string{"outcome"},
			),
		}
	})
	return globalMetrics
}

// RecordRun records a terminal run state and duration.
func (m *Metrics) RecordRun(state State, d time.Duration) {
	m.RunsTotal.WithLabelValues(string(state)).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// RecordStepRetries records retries for one step.
func (m *Metrics) RecordStepRetries(step string, retries int) {
	m.StepRetriesTotal.WithLabelValues(step).Add(float64(retries))
}

// RecordCompensation records one compensation step outcome.
func (m *Metrics) RecordCompensation(outcome string) {
	m.CompensationsTotal.WithLabelValues(outcome).Inc()
}

package sweep

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for governance sweeps.
type Metrics struct {
	RecordsSwept      *prometheus.CounterVec
	RemediationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers sweep metrics. Registration happens once
// per process; subsequent calls return the same instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RecordsSwept: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sweep_records_total",
					Help: "Records swept, by whether violations were found",
				},
				[]string{"violations"},
			),
			RemediationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sweep_remediations_total",
					Help: "Remediation attempts by remedy and result",
				},
				[]string{"remedy", "result"},
			),
		}
	})
	return globalMetrics
}

// RecordSwept counts one swept record.
func (m *Metrics) RecordSwept(hasViolations bool) {
	label := "none"
	if hasViolations {
		label = "found"
	}
	m.RecordsSwept.WithLabelValues(label).Inc()
}

// RecordRemediation counts one remediation attempt.
func (m *Metrics) RecordRemediation(remedy, result string) {
	m.RemediationsTotal.WithLabelValues(remedy, result).Inc()
}

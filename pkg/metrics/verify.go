package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Manager) initVerifyMetrics(cfg Config) {
	m.verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verify_checks_total",
			Help: "Total number of verification checks by result",
		},
		[]string{"result"},
	)

	m.provenanceCoverage = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "verify_provenance_coverage",
			Help:    "Provenance coverage of verified answers",
			Buckets: []float64{0.1, 0.25, 0.5, 0.7, 0.85, 0.9, 0.95, 1.0},
		},
	)

	m.registry.MustRegister(m.verifications)
	m.registry.MustRegister(m.provenanceCoverage)
}

// RecordVerification records one verification check result and its coverage.
func (m *Manager) RecordVerification(passed bool, coverage float64) {
	if !m.enabled {
		return
	}
	result := "failed"
	if passed {
		result = "passed"
	}
	m.verifications.WithLabelValues(result).Inc()
	m.provenanceCoverage.Observe(coverage)
}

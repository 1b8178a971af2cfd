package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initChainMetrics(cfg Config) {
	m.chainExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_executions_total",
			Help: "Total number of reasoning chain executions by terminal outcome",
		},
		[]string{"outcome"},
	)

	m.chainDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chain_duration_seconds",
			Help:    "Reasoning chain execution duration in seconds",
			Buckets: cfg.ChainDurationBuckets,
		},
		[]string{"outcome"},
	)

	m.nodeExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_node_executions_total",
			Help: "Total number of chain node executions by node kind and status",
		},
		[]string{"node", "status"},
	)

	m.nodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chain_node_duration_seconds",
			Help:    "Chain node execution duration in seconds",
			Buckets: cfg.NodeDurationBuckets,
		},
		[]string{"node"},
	)

	m.chainSelfCorrection = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chain_self_corrections_total",
			Help: "Total number of critic-triggered re-reasoning passes",
		},
	)

	m.registry.MustRegister(m.chainExecutions)
	m.registry.MustRegister(m.chainDuration)
	m.registry.MustRegister(m.nodeExecutions)
	m.registry.MustRegister(m.nodeDuration)
	m.registry.MustRegister(m.chainSelfCorrection)
}

// RecordChainExecution records one chain execution outcome.
func (m *Manager) RecordChainExecution(outcome string) {
	if !m.enabled {
		return
	}
	m.chainExecutions.WithLabelValues(outcome).Inc()
}

// RecordChainDuration records chain execution latency.
func (m *Manager) RecordChainDuration(outcome string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.chainDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordNodeExecution records one node execution by kind and status.
func (m *Manager) RecordNodeExecution(node, status string) {
	if !m.enabled {
		return
	}
	m.nodeExecutions.WithLabelValues(node, status).Inc()
}

// RecordNodeDuration records node execution latency.
func (m *Manager) RecordNodeDuration(node string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.nodeDuration.WithLabelValues(node).Observe(duration.Seconds())
}

// RecordSelfCorrection records one critic-triggered re-reasoning pass.
func (m *Manager) RecordSelfCorrection() {
	if !m.enabled {
		return
	}
	m.chainSelfCorrection.Inc()
}

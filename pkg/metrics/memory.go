package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Manager) initMemoryMetrics(cfg Config) {
	m.memoryStores = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_stores_total",
			Help: "Total number of memory store operations by outcome",
		},
		[]string{"outcome"},
	)

	m.memoryRetrievals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memory_retrievals_total",
			Help: "Total number of memory retrieval operations",
		},
	)

	m.memoryRetrievalHit = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_retrieval_results_total",
			Help: "Total number of retrieval operations by hit or miss",
		},
		[]string{"result"},
	)

	m.memoryCompressions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memory_compressions_total",
			Help: "Total number of committed record compressions",
		},
	)

	m.compressionRatio = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memory_compression_ratio",
			Help:    "Marker-to-replaced-span token ratio of committed compressions",
			Buckets: []float64{0.01, 0.02, 0.05, 0.10, 0.15},
		},
	)

	m.registry.MustRegister(m.memoryStores)
	m.registry.MustRegister(m.memoryRetrievals)
	m.registry.MustRegister(m.memoryRetrievalHit)
	m.registry.MustRegister(m.memoryCompressions)
	m.registry.MustRegister(m.compressionRatio)
}

// RecordMemoryStore records one store operation outcome.
func (m *Manager) RecordMemoryStore(outcome string) {
	if !m.enabled {
		return
	}
	m.memoryStores.WithLabelValues(outcome).Inc()
}

// RecordMemoryRetrieval records one retrieval and whether it found anything.
func (m *Manager) RecordMemoryRetrieval(hits int) {
	if !m.enabled {
		return
	}
	m.memoryRetrievals.Inc()
	result := "hit"
	if hits == 0 {
		result = "miss"
	}
	m.memoryRetrievalHit.WithLabelValues(result).Inc()
}

// RecordMemoryCompression records one committed compression.
func (m *Manager) RecordMemoryCompression(ratio float64) {
	if !m.enabled {
		return
	}
	m.memoryCompressions.Inc()
	m.compressionRatio.Observe(ratio)
}

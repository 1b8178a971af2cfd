package memory

// MetricsRecorder records memory-store runtime metrics.
type MetricsRecorder interface {
	RecordMemoryStore(outcome string)
	RecordMemoryRetrieval(hits int)
	RecordMemoryCompression(ratio float64)
}

type nopMetricsRecorder struct{}

func (nopMetricsRecorder) RecordMemoryStore(outcome string)      {}
func (nopMetricsRecorder) RecordMemoryRetrieval(hits int)        {}
func (nopMetricsRecorder) RecordMemoryCompression(ratio float64) {}

package chain

import "time"

// MetricsRecorder records chain runtime metrics.
type MetricsRecorder interface {
	RecordChainExecution(outcome string)
	RecordChainDuration(outcome string, duration time.Duration)
	RecordNodeExecution(node, status string)
	RecordNodeDuration(node string, duration time.Duration)
	RecordSelfCorrection()
}

type nopMetricsRecorder struct{}

func (nopMetricsRecorder) RecordChainExecution(outcome string)                        {}
func (nopMetricsRecorder) RecordChainDuration(outcome string, duration time.Duration) {}
func (nopMetricsRecorder) RecordNodeExecution(node, status string)                    {}
func (nopMetricsRecorder) RecordNodeDuration(node string, duration time.Duration)     {}
func (nopMetricsRecorder) RecordSelfCorrection()                                      {}

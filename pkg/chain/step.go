package chain

import "time"

// NodeKind identifies one node of the reasoning pipeline.
type NodeKind string

const (
	NodePlan      NodeKind = "plan"
	NodeRetrieve  NodeKind = "retrieve"
	NodeCondense  NodeKind = "condense"
	NodeReason    NodeKind = "reason"
	NodeVerify    NodeKind = "verify"
	NodeCritic    NodeKind = "critic"
	NodeAuditPack NodeKind = "auditpack"
	NodeReflect   NodeKind = "reflect"
)

// StepStatus is the lifecycle status of one step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// ReasoningStep records one node execution. Steps are immutable once
// completed or failed; the engine appends, never rewrites.
type ReasoningStep struct {
	NodeKind   NodeKind   `json:"node_kind"`
	Input      string     `json:"input"`
	Output     string     `json:"output"`
	DurationMs int64      `json:"duration_ms"`
	Confidence float64    `json:"confidence"`
	Status     StepStatus `json:"status"`
	AgentID    string     `json:"agent_id"`
	Timestamp  time.Time  `json:"timestamp"`
	TokensUsed int        `json:"tokens_used"`
}

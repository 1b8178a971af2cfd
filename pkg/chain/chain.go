// Package chain implements the orchestration engine: a bounded reasoning
// pipeline that plans, retrieves from the memory store, condenses context,
// reasons through a completion provider, verifies provenance, and
// self-corrects within a fixed iteration budget.
package chain

import (
	"time"

	"github.com/google/uuid"

	"github.com/mindloom/mindloom/pkg/verify"
)

// HealingEvent records a recoverable failure and what the engine did about
// it.
type HealingEvent struct {
	Event      string    `json:"event"`
	Timestamp  time.Time `json:"timestamp"`
	Resolution string    `json:"resolution"`
}

// ReasoningChain is the unit of orchestration output: one chain per query,
// appended to during execution, persisted once when terminal. Partial chains
// from fatal failures are persisted too, flagged by zeroed confidence and an
// error healing event.
type ReasoningChain struct {
	TraceID            string             `json:"trace_id"`
	UserQuery          string             `json:"user_query"`
	Steps              []ReasoningStep    `json:"steps"`
	TokenBudget        int                `json:"token_budget"`
	TokensUsed         int                `json:"tokens_used"`
	FinalAnswer        string             `json:"final_answer"`
	Support            []verify.Citation  `json:"support,omitempty"`
	Confidence         float64            `json:"confidence"`
	ProvenanceCoverage float64            `json:"provenance_coverage"`
	SemanticEntropy    *float64           `json:"semantic_entropy,omitempty"`
	HealingEvents      []HealingEvent     `json:"healing_events,omitempty"`
	Iterations         int                `json:"iterations"`
	Phase              Phase              `json:"phase"`
	AuditHash          string             `json:"audit_hash,omitempty"`
	DurationMs         int64              `json:"duration_ms"`
	CreatedAt          time.Time          `json:"created_at"`
	Verification       *verify.Result     `json:"verification,omitempty"`
}

// NewChain creates an empty chain for one query.
func NewChain(userQuery string, tokenBudget int) *ReasoningChain {
	return &ReasoningChain{
		TraceID:     uuid.NewString(),
		UserQuery:   userQuery,
		TokenBudget: tokenBudget,
		Phase:       PhaseReasoning,
		CreatedAt:   time.Now().UTC(),
	}
}

// ReasonSteps counts completed REASON executions, the quantity bounded by
// maxIterations. A failed provider attempt followed by its fallback is one
// execution, not two.
func (c *ReasoningChain) ReasonSteps() int {
	n := 0
	for _, s := range c.Steps {
		if s.NodeKind == NodeReason && s.Status == StepCompleted {
			n++
		}
	}
	return n
}

// addHealingEvent appends a healing event with the current timestamp.
func (c *ReasoningChain) addHealingEvent(event, resolution string) {
	c.HealingEvents = append(c.HealingEvents, HealingEvent{
		Event:      event,
		Timestamp:  time.Now().UTC(),
		Resolution: resolution,
	})
}

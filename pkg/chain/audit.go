package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// auditEntry is the canonical per-step form hashed into the audit pack.
// Only fields that define what happened are included; free-text inputs and
// outputs are hashed rather than embedded so the pack stays small while any
// alteration of them is still detectable.
type auditEntry struct {
	NodeKind   NodeKind   `json:"node_kind"`
	Status     StepStatus `json:"status"`
	Confidence float64    `json:"confidence"`
	AgentID    string     `json:"agent_id"`
	OutputHash string     `json:"output_hash"`
}

// AuditHash computes the tamper-evident hash over (traceId, steps, agents).
// Replaying the recorded steps through this function must reproduce the
// stored hash; a mismatch means the trace was altered after the fact.
func AuditHash(traceID string, steps []ReasoningStep) string {
	entries := make([]auditEntry, 0, len(steps))
	agents := make(map[string]struct{})
	for _, s := range steps {
		out := sha256.Sum256([]byte(s.Output))
		entries = append(entries, auditEntry{
			NodeKind:   s.NodeKind,
			Status:     s.Status,
			Confidence: s.Confidence,
			AgentID:    s.AgentID,
			OutputHash: hex.EncodeToString(out[:]),
		})
		if s.AgentID != "" {
			agents[s.AgentID] = struct{}{}
		}
	}

	agentList := make([]string, 0, len(agents))
	for a := range agents {
		agentList = append(agentList, a)
	}
	sort.Strings(agentList)

	payload, _ := json.Marshal(struct {
		TraceID string       `json:"trace_id"`
		Steps   []auditEntry `json:"steps"`
		Agents  []string     `json:"agents"`
	}{TraceID: traceID, Steps: entries, Agents: agentList})

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chain event types carried over the bus.
const (
	EventChainStarted   = "chain.started"
	EventChainStep      = "chain.step"
	EventChainCompleted = "chain.completed"
)

// ChainEvent is one chain lifecycle or step event.
type ChainEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Timestamp  time.Time `json:"timestamp"`
	TraceID    string    `json:"trace_id"`
	Node       string    `json:"node,omitempty"`
	Status     string    `json:"status,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	TokensUsed int       `json:"tokens_used,omitempty"`
	Iteration  int       `json:"iteration,omitempty"`
}

// NewChainEvent creates an event with identity and timestamp filled in.
func NewChainEvent(eventType, traceID string) ChainEvent {
	return ChainEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		TraceID:   traceID,
	}
}

// Subject returns the bus subject for the event, e.g.
// "chain.<traceID>.step".
func (e ChainEvent) Subject() string {
	switch e.EventType {
	case EventChainStarted:
		return SubjectChainStarted(e.TraceID)
	case EventChainCompleted:
		return SubjectChainCompleted(e.TraceID)
	default:
		return SubjectChainStep(e.TraceID)
	}
}

// Marshal serializes the event payload.
func (e ChainEvent) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("eventbus: marshal chain event: %w", err)
	}
	return data, nil
}

// SubjectChainStarted is the lifecycle subject for chain start.
func SubjectChainStarted(traceID string) string {
	return "chain." + traceID + ".started"
}

// SubjectChainStep is the per-step subject for one chain.
func SubjectChainStep(traceID string) string {
	return "chain." + traceID + ".step"
}

// SubjectChainCompleted is the lifecycle subject for chain completion.
func SubjectChainCompleted(traceID string) string {
	return "chain." + traceID + ".completed"
}

// SubjectAllChains matches every chain event.
const SubjectAllChains = "chain.>"

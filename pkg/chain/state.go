package chain

import "fmt"

// Phase is the coarse execution phase of a chain. The critic/reason loop is
// modeled as explicit transitions rather than nested control flow, so the
// iteration bound is a first-class, testable field on the chain.
type Phase int

const (
	PhaseReasoning Phase = iota
	PhaseVerifying
	PhaseCritiquing
	PhaseDone
)

var validTransitions = map[Phase]map[Phase]struct{}{
	PhaseReasoning: {
		PhaseVerifying: {},
		PhaseDone:      {},
	},
	PhaseVerifying: {
		PhaseCritiquing: {},
		PhaseDone:       {},
	},
	PhaseCritiquing: {
		PhaseReasoning: {},
	},
}

// String returns the string form of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseReasoning:
		return "reasoning"
	case PhaseVerifying:
		return "verifying"
	case PhaseCritiquing:
		return "critiquing"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// MarshalText serializes the phase as its string form.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses the string form of a phase.
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "reasoning":
		*p = PhaseReasoning
	case "verifying":
		*p = PhaseVerifying
	case "critiquing":
		*p = PhaseCritiquing
	case "done":
		*p = PhaseDone
	default:
		return fmt.Errorf("chain: unknown phase %q", text)
	}
	return nil
}

// IsTerminal reports whether the phase is terminal.
func (p Phase) IsTerminal() bool {
	return p == PhaseDone
}

// CanTransitionTo checks whether a phase transition is valid. Self
// transitions are allowed; re-entering Reasoning from Critiquing is the only
// back-edge.
func (p Phase) CanTransitionTo(next Phase) bool {
	if p == next {
		return true
	}
	validNext, ok := validTransitions[p]
	if !ok {
		return false
	}
	_, ok = validNext[next]
	return ok
}

// transitionTo moves the chain to the next phase, or errors on an invalid
// transition.
func (c *ReasoningChain) transitionTo(next Phase) error {
	if !c.Phase.CanTransitionTo(next) {
		return fmt.Errorf("chain: invalid phase transition: %s -> %s", c.Phase, next)
	}
	c.Phase = next
	return nil
}

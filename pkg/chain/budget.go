package chain

// ledger tracks token spending across one chain. The budget is checked
// before a step, never enforced during one, so a single step may overrun;
// exhausted reports that state so the engine can degrade confidence instead
// of failing.
type ledger struct {
	budget int
	used   int
}

func newLedger(budget int) *ledger {
	return &ledger{budget: budget}
}

// charge records a step's token estimate. Charges are never refused: the
// ledger is an accounting device, not a gate.
func (l *ledger) charge(tokens int) {
	if tokens < 0 {
		return
	}
	l.used += tokens
}

// remaining is the unspent budget; negative after an overrun.
func (l *ledger) remaining() int {
	return l.budget - l.used
}

// exhausted reports whether the next step starts with no budget left.
func (l *ledger) exhausted() bool {
	return l.remaining() <= 0
}

package memory

// TokenCounter estimates how many model tokens a text consumes. It is a
// swappable capability so a real tokenizer can replace the default
// estimator without touching pipeline logic.
type TokenCounter interface {
	Count(text string) int
}

// CharCounter approximates tokens as ceil(len/4). This is a documented
// simplification, not a true tokenizer; it tracks English prose within a
// factor small enough for budgeting and tiering.
type CharCounter struct{}

// Count returns ceil(len(text)/4).
func (CharCounter) Count(text string) int {
	return (len(text) + 3) / 4
}

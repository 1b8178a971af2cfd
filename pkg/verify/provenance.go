package verify

// ProvenanceCoverage reports what fraction of the answer is textually
// grounded in cited material: min(1, sum(len(quote)) / len(answer)).
// This is a character-overlap proxy, not semantic entailment; a citation
// longer than the answer saturates coverage at 1.
func ProvenanceCoverage(answer string, citations []Citation) float64 {
	if len(answer) == 0 {
		return 0
	}
	quoted := 0
	for _, c := range citations {
		quoted += len(c.Quote)
	}
	coverage := float64(quoted) / float64(len(answer))
	if coverage > 1 {
		return 1
	}
	return coverage
}

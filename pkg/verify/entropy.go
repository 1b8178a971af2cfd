package verify

import (
	"math"
	"strings"
	"unicode"
)

// SemanticEntropy measures disagreement across a set of completions by
// clustering them on normalized exact match and computing Shannon entropy
// over the cluster proportions: H = -sum(p * log2(p)). Production systems
// cluster by embedding similarity; exact match after normalization is the
// documented simplification used here. Fewer than two completions carry no
// measurable disagreement and yield 0.
func SemanticEntropy(completions []string) float64 {
	if len(completions) < 2 {
		return 0
	}

	clusters := make(map[string]int, len(completions))
	for _, c := range completions {
		clusters[normalizeCompletion(c)]++
	}

	total := float64(len(completions))
	entropy := 0.0
	for _, n := range clusters {
		p := float64(n) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// normalizeCompletion lowercases, strips punctuation, and collapses
// whitespace so trivially different phrasings land in one cluster.
func normalizeCompletion(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

package memory

import (
	"math"
	"strings"
	"time"
	"unicode"
)

// Quality-score component weights: QS = 0.4*completeness + 0.3*density + 0.3*relevance.
const (
	qsCompletenessWeight = 0.4
	qsDensityWeight      = 0.3
	qsRelevanceWeight    = 0.3
)

// Completeness bonuses, additive and summing to at most 1.
const (
	bonusLength    = 0.4 // content longer than 100 characters
	bonusSentences = 0.3 // multi-sentence structure
	bonusStructure = 0.3 // visible structure: newlines or bullets
)

// DefaultDecayTau is the per-hour decay factor applied to retrieval scores
// at read time.
const DefaultDecayTau = 0.95

// qualityScore computes QS from content and tag count.
func qualityScore(content string, tagCount int) float64 {
	return qsCompletenessWeight*completeness(content) +
		qsDensityWeight*density(content) +
		qsRelevanceWeight*relevance(tagCount)
}

// completeness rewards length, multi-sentence structure, and visible
// structure. The three bonuses are additive and cap at 1.
func completeness(content string) float64 {
	score := 0.0
	if len(content) > 100 {
		score += bonusLength
	}
	if countSentences(content) >= 2 {
		score += bonusSentences
	}
	if hasStructure(content) {
		score += bonusStructure
	}
	return score
}

// density is lexical diversity: unique tokens over total tokens, capped at 1.
func density(content string) float64 {
	tokens := Tokenize(content)
	if len(tokens) == 0 {
		return 0
	}
	unique := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		unique[t] = struct{}{}
	}
	d := float64(len(unique)) / float64(len(tokens))
	if d > 1 {
		return 1
	}
	return d
}

// relevance is min(|tags|/5, 1), a proxy for how well-connected the record is.
func relevance(tagCount int) float64 {
	r := float64(tagCount) / 5
	if r > 1 {
		return 1
	}
	return r
}

// indexDepthScore is log10(|tags|+1) scaled by a connectivity factor
// min(|tags|/3, 1), clamped so the retrieval score stays in [0,1].
func indexDepthScore(tagCount int) float64 {
	depth := math.Log10(float64(tagCount) + 1)
	connectivity := float64(tagCount) / 3
	if connectivity > 1 {
		connectivity = 1
	}
	ids := depth * connectivity
	if ids > 1 {
		return 1
	}
	return ids
}

// retrievalScore is the composite RS = QS * IDS * (1 - DD), clamped to [0,1].
func retrievalScore(qs, ids, dd float64) float64 {
	rs := qs * ids * (1 - dd)
	if rs < 0 {
		return 0
	}
	if rs > 1 {
		return 1
	}
	return rs
}

// DecayedScore applies temporal decay to a stored retrieval score:
// RS * tau^hoursSinceLastAccess. At zero elapsed hours the stored score is
// returned unchanged; for tau < 1 the result is non-increasing in elapsed
// time. Decay is recomputed from the stored timestamp on every read, never
// cached, so concurrent readers converge on the same ordering.
func DecayedScore(rs float64, lastAccessedAt time.Time, tau float64, now time.Time) float64 {
	if tau <= 0 || tau > 1 {
		tau = DefaultDecayTau
	}
	hours := now.Sub(lastAccessedAt).Hours()
	if hours <= 0 {
		return rs
	}
	return rs * math.Pow(tau, hours)
}

func countSentences(content string) int {
	count := 0
	for _, r := range content {
		if r == '.' || r == '!' || r == '?' {
			count++
		}
	}
	return count
}

func hasStructure(content string) bool {
	return strings.ContainsRune(content, '\n') ||
		strings.Contains(content, "- ") ||
		strings.Contains(content, "* ")
}

// Tokenize splits text into lowercase alphanumeric tokens with stop words
// removed. Shared by the density metric and by query tag extraction in the
// orchestration engine.
func Tokenize(text string) []string {
	text = strings.ToLower(text)

	tokens := make([]string, 0, len(text)/4)
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		token := current.String()
		if _, stop := stopWords[token]; !stop {
			tokens = append(tokens, token)
		}
		current.Reset()
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()

	return tokens
}

var stopWords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did", "will", "would", "could",
		"should", "may", "might", "shall", "can", "need", "ought",
		"to", "of", "in", "for", "on", "with", "at", "by", "from",
		"as", "into", "through", "during", "before", "after", "above", "below",
		"between", "out", "off", "over", "under", "again", "further", "then",
		"once", "and", "but", "or", "nor", "not", "so", "yet", "both",
		"either", "neither", "each", "every", "all", "any", "few", "more",
		"most", "other", "some", "such", "no", "only", "own", "same", "than",
		"too", "very", "just", "because", "if", "when", "where", "how", "what",
		"which", "who", "whom", "this", "that", "these", "those", "i", "me",
		"my", "we", "our", "you", "your", "he", "him", "his", "she", "her",
		"it", "its", "they", "them", "their",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

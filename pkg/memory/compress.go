package memory

import "fmt"

// Dumbbell compression constants. At least headTailRatio of the original
// token count is preserved verbatim at each end; the middle is replaced by
// a marker. Compression only commits when the marker is a small enough
// fraction of the middle it replaces.
const (
	headTailRatio        = 0.20
	compressionThreshold = 0.15
)

// compressionResult describes a computed (not yet committed) compression.
type compressionResult struct {
	content    string
	headSpan   int // tokens preserved at the head
	tailSpan   int // tokens preserved at the tail
	ratio      float64
	tokenCount int
}

// computeCompression derives the dumbbell form of a record's content. In a
// production deployment the middle would be produced by an external
// summarizer; here it is a deterministic marker. Returns false when the
// compression is not worthwhile: the marker must stay under
// compressionThreshold of the middle it replaces, which rejects short
// records where nothing meaningful would be saved.
func computeCompression(content string, tokenCount int, counter TokenCounter) (compressionResult, bool) {
	if counter == nil {
		counter = CharCounter{}
	}

	span := (tokenCount*20 + 99) / 100 // ceil(tokenCount * headTailRatio)
	middleTokens := tokenCount - 2*span
	if middleTokens <= 0 {
		return compressionResult{}, false
	}

	// Token spans map back to character offsets via the same 4-chars-per-
	// token estimate used everywhere else.
	headChars := span * 4
	tailChars := span * 4
	if headChars+tailChars >= len(content) {
		return compressionResult{}, false
	}

	head := content[:headChars]
	tail := content[len(content)-tailChars:]
	marker := fmt.Sprintf(" [compressed %d tokens] ", middleTokens)

	ratio := float64(counter.Count(marker)) / float64(middleTokens)
	if ratio >= compressionThreshold {
		return compressionResult{}, false
	}

	compressed := head + marker + tail
	return compressionResult{
		content:    compressed,
		headSpan:   span,
		tailSpan:   span,
		ratio:      ratio,
		tokenCount: counter.Count(compressed),
	}, true
}

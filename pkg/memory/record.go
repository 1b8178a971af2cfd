// Package memory implements the ranking layer of the reasoning pipeline:
// memory records with a composite retrieval score, tier assignment,
// temporal decay at read time, a tag graph with hierarchical closure, and
// head/tail-preserving compression.
package memory

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Tier buckets records by token count. Assigned once at creation and only
// recomputed on compression.
type Tier string

const (
	TierShort      Tier = "short"
	TierMedium     Tier = "medium"
	TierLarge      Tier = "large"
	TierSuperIndex Tier = "superIndex"
)

// Tier boundaries in tokens, inclusive at the lower tier.
const (
	shortMaxTokens  = 200
	mediumMaxTokens = 800
	largeMaxTokens  = 8000
)

// TierFor returns the tier for a token count.
func TierFor(tokens int) Tier {
	switch {
	case tokens <= shortMaxTokens:
		return TierShort
	case tokens <= mediumMaxTokens:
		return TierMedium
	case tokens <= largeMaxTokens:
		return TierLarge
	default:
		return TierSuperIndex
	}
}

// MemoryRecord is a unit of stored knowledge.
type MemoryRecord struct {
	// ID is a ULID, sortable by creation time.
	ID string `json:"id"`

	// ContentHash is the content-addressed dedup key (sha256 of Content).
	ContentHash string `json:"content_hash"`

	Content    string `json:"content"`
	TokenCount int    `json:"token_count"`
	Tier       Tier   `json:"tier"`

	// Composite score components. RetrievalScore = QS * IDS * (1 - DD).
	QualityScore    float64 `json:"quality_score"`
	IndexDepthScore float64 `json:"index_depth_score"`
	DependencyDelta float64 `json:"dependency_delta"`
	RetrievalScore  float64 `json:"retrieval_score"`

	Tags       []string `json:"tags,omitempty"`
	ParentTags []string `json:"parent_tags,omitempty"`

	Importance     float64   `json:"importance"`
	AccessCount    int64     `json:"access_count"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	CreatedAt      time.Time `json:"created_at"`

	// Compression state. One-way: once compressed the original content is
	// gone and the spans record what was preserved verbatim.
	IsCompressed       bool    `json:"is_compressed"`
	CompressionRatio   float64 `json:"compression_ratio,omitempty"`
	OriginalTokenCount int     `json:"original_token_count,omitempty"`
	HeadSpan           int     `json:"head_span,omitempty"`
	TailSpan           int     `json:"tail_span,omitempty"`

	// Provenance.
	Source    string `json:"source,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// TagNode is one node of the tag graph, created lazily on first use.
type TagNode struct {
	Tag            string    `json:"tag"`
	ParentTag      string    `json:"parent_tag,omitempty"`
	Priority       float64   `json:"priority"`
	AccessCount    int64     `json:"access_count"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	DecayTau       float64   `json:"decay_tau"`
}

// RetrievalQuery selects and ranks candidate records. All filters are
// optional; an empty Text with only tier/tag filters is valid and is how
// tier buckets are materialized.
type RetrievalQuery struct {
	Text      string   `json:"text,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Tier      Tier     `json:"tier,omitempty"`
	MinScore  *float64 `json:"min_score,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

// RetrievalResult pairs a record with its decay-adjusted score at the time
// of retrieval. The stored RetrievalScore on the record is untouched;
// Score is what the ranking actually used.
type RetrievalResult struct {
	Record *MemoryRecord `json:"record"`
	Score  float64       `json:"score"`
}

// Stats is a pure aggregation over all stored records.
type Stats struct {
	Total                 int          `json:"total"`
	CountByTier           map[Tier]int `json:"count_by_tier"`
	AverageRetrievalScore float64      `json:"average_retrieval_score"`
	CompressedCount       int          `json:"compressed_count"`
}

// Hierarchy is a per-tier view of the store, highest-ranked first.
type Hierarchy struct {
	L1 []*RetrievalResult `json:"l1"` // short
	L2 []*RetrievalResult `json:"l2"` // medium
	L3 []*RetrievalResult `json:"l3"` // large
}

// NewRecordID returns a fresh ULID string.
func NewRecordID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

func cloneRecord(r *MemoryRecord) *MemoryRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Tags != nil {
		clone.Tags = append([]string(nil), r.Tags...)
	}
	if r.ParentTags != nil {
		clone.ParentTags = append([]string(nil), r.ParentTags...)
	}
	return &clone
}

func cloneTag(n *TagNode) *TagNode {
	if n == nil {
		return nil
	}
	clone := *n
	return &clone
}

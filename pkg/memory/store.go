package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Per-tier limits used by BuildHierarchy.
const (
	hierarchyShortLimit  = 50
	hierarchyMediumLimit = 100
	hierarchyLargeLimit  = 500
)

// DefaultRetrieveLimit caps retrieval when the query does not specify one.
const DefaultRetrieveLimit = 20

// Defaults for lazily created tag nodes.
const (
	defaultTagPriority = 0.5
	defaultTagDecayTau = 0.95
)

// svcLogger is the minimal logger interface used by the Service.
type svcLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}

// Option customizes Service construction.
type Option func(*Service)

// WithTokenCounter substitutes the token estimator.
func WithTokenCounter(c TokenCounter) Option {
	return func(s *Service) {
		if c != nil {
			s.counter = c
		}
	}
}

// WithDecayTau overrides the per-hour decay factor used at read time.
func WithDecayTau(tau float64) Option {
	return func(s *Service) {
		if tau > 0 && tau <= 1 {
			s.tau = tau
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l svcLogger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Service is the memory store: scoring, tiering, dedup, decay-ranked
// retrieval, and dumbbell compression over a RecordStore. Safe for
// concurrent use by multiple reasoning chains; per-record update atomicity
// is delegated to the store.
type Service struct {
	store   RecordStore
	counter TokenCounter
	tau     float64
	logger  svcLogger
	metrics MetricsRecorder
}

// NewService creates a memory service over the given record store.
func NewService(store RecordStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		counter: CharCounter{},
		tau:     DefaultDecayTau,
		logger:  nopLogger{},
		metrics: nopMetricsRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StoreInput is the write request for one memory record.
type StoreInput struct {
	Content    string   `json:"content"`
	Tags       []string `json:"tags,omitempty"`
	Importance float64  `json:"importance"`
	Source     string   `json:"source,omitempty"`
	UserID     string   `json:"user_id,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
}

// Store ingests content as a memory record. Created reports whether a new
// record was written: storing content whose hash already exists bumps the
// existing record's access stats and returns it with created=false — the
// duplicate path is a successful no-op, not an error.
func (s *Service) Store(ctx context.Context, in StoreInput) (*MemoryRecord, bool, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, false, ErrEmptyContent
	}
	if in.Importance < 0 || in.Importance > 1 {
		return nil, false, ErrInvalidImportance
	}

	hash := contentHash(in.Content)
	now := time.Now().UTC()

	if existing, err := s.store.GetRecordByHash(ctx, hash); err == nil {
		if err := s.store.TouchRecord(ctx, existing.ID, now); err != nil {
			return nil, false, fmt.Errorf("memory: touch duplicate: %w", err)
		}
		existing.AccessCount++
		existing.LastAccessedAt = now
		s.logger.Debug("duplicate content, access bumped", "record_id", existing.ID)
		s.metrics.RecordMemoryStore("duplicate")
		return existing, false, nil
	} else if err != ErrNotFound {
		return nil, false, fmt.Errorf("memory: hash lookup: %w", err)
	}

	tags := normalizeTags(in.Tags)
	tokenCount := s.counter.Count(in.Content)

	qs := qualityScore(in.Content, len(tags))
	ids := indexDepthScore(len(tags))
	dd := 0.0 // no dependents at creation

	parentTags, err := s.upsertTags(ctx, tags, now)
	if err != nil {
		return nil, false, err
	}

	rec := &MemoryRecord{
		ID:              NewRecordID(),
		ContentHash:     hash,
		Content:         in.Content,
		TokenCount:      tokenCount,
		Tier:            TierFor(tokenCount),
		QualityScore:    qs,
		IndexDepthScore: ids,
		DependencyDelta: dd,
		RetrievalScore:  retrievalScore(qs, ids, dd),
		Tags:            tags,
		ParentTags:      parentTags,
		Importance:      in.Importance,
		LastAccessedAt:  now,
		CreatedAt:       now,
		Source:          in.Source,
		UserID:          in.UserID,
		SessionID:       in.SessionID,
	}

	if err := s.store.PutRecord(ctx, rec); err != nil {
		return nil, false, fmt.Errorf("memory: store record: %w", err)
	}

	s.logger.Debug("memory stored",
		"record_id", rec.ID,
		"tier", rec.Tier,
		"tokens", rec.TokenCount,
		"retrieval_score", rec.RetrievalScore,
	)
	s.metrics.RecordMemoryStore("created")
	return rec, true, nil
}

// Retrieve filters, decay-ranks, and returns at most Limit records. The
// decayed score is RS * tau^hoursSinceLastAccess recomputed per call, so
// two calls over identical stored data can legitimately return a different
// order as time passes. Every returned record is touched: retrieval is
// itself an access event feeding future decay.
func (s *Service) Retrieve(ctx context.Context, q RetrievalQuery) ([]*RetrievalResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultRetrieveLimit
	}

	tags := normalizeTags(q.Tags)
	if len(tags) == 0 && q.Text != "" {
		tags = Tokenize(q.Text)
	}

	candidates, err := s.store.ListRecords(ctx, RecordFilter{
		Tier:      q.Tier,
		Tags:      tags,
		SessionID: q.SessionID,
		MinScore:  q.MinScore,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: list records: %w", err)
	}

	now := time.Now().UTC()
	results := make([]*RetrievalResult, 0, len(candidates))
	for _, rec := range candidates {
		results = append(results, &RetrievalResult{
			Record: rec,
			Score:  DecayedScore(rec.RetrievalScore, rec.LastAccessedAt, s.tau, now),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}

	for _, r := range results {
		if err := s.store.TouchRecord(ctx, r.Record.ID, now); err != nil {
			s.logger.Warn("failed to bump access stats", "record_id", r.Record.ID, "error", err)
			continue
		}
		r.Record.AccessCount++
		r.Record.LastAccessedAt = now
	}

	s.metrics.RecordMemoryRetrieval(len(results))
	return results, nil
}

// Compress applies dumbbell compression to one record: at least 20% of the
// original token count is kept verbatim at each end and the middle is
// replaced by a marker. Returns false without touching the record when it
// is missing, already compressed, or too small for compression to pay off.
// Committed compression is irreversible — the original content is gone.
func (s *Service) Compress(ctx context.Context, id string) (bool, error) {
	rec, err := s.store.GetRecord(ctx, id)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("memory: load record: %w", err)
	}
	if rec.IsCompressed {
		return false, nil
	}

	result, ok := computeCompression(rec.Content, rec.TokenCount, s.counter)
	if !ok {
		return false, nil
	}

	rec.OriginalTokenCount = rec.TokenCount
	rec.Content = result.content
	rec.TokenCount = result.tokenCount
	rec.Tier = TierFor(result.tokenCount)
	rec.IsCompressed = true
	rec.CompressionRatio = result.ratio
	rec.HeadSpan = result.headSpan
	rec.TailSpan = result.tailSpan

	if err := s.store.PutRecord(ctx, rec); err != nil {
		return false, fmt.Errorf("memory: commit compression: %w", err)
	}

	s.logger.Info("memory compressed",
		"record_id", rec.ID,
		"original_tokens", rec.OriginalTokenCount,
		"compressed_tokens", rec.TokenCount,
		"ratio", rec.CompressionRatio,
	)
	s.metrics.RecordMemoryCompression(rec.CompressionRatio)
	return true, nil
}

// BuildHierarchy materializes the per-tier buckets with tier-appropriate
// limits. A read-only composition of Retrieve, so the usual decay ranking
// and access bumping apply.
func (s *Service) BuildHierarchy(ctx context.Context) (*Hierarchy, error) {
	l1, err := s.Retrieve(ctx, RetrievalQuery{Tier: TierShort, Limit: hierarchyShortLimit})
	if err != nil {
		return nil, err
	}
	l2, err := s.Retrieve(ctx, RetrievalQuery{Tier: TierMedium, Limit: hierarchyMediumLimit})
	if err != nil {
		return nil, err
	}
	l3, err := s.Retrieve(ctx, RetrievalQuery{Tier: TierLarge, Limit: hierarchyLargeLimit})
	if err != nil {
		return nil, err
	}
	return &Hierarchy{L1: l1, L2: l2, L3: l3}, nil
}

// GetStats aggregates over all stored records.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	records, err := s.store.ListRecords(ctx, RecordFilter{})
	if err != nil {
		return nil, fmt.Errorf("memory: list records: %w", err)
	}

	stats := &Stats{
		Total:       len(records),
		CountByTier: make(map[Tier]int, 4),
	}
	totalScore := 0.0
	for _, rec := range records {
		stats.CountByTier[rec.Tier]++
		totalScore += rec.RetrievalScore
		if rec.IsCompressed {
			stats.CompressedCount++
		}
	}
	if len(records) > 0 {
		stats.AverageRetrievalScore = totalScore / float64(len(records))
	}
	return stats, nil
}

// SetTagParent links a tag to its parent in the tag graph, creating either
// node if absent. Subsequent stores referencing the child resolve the
// parent into the record's parent-tag closure.
func (s *Service) SetTagParent(ctx context.Context, tag, parent string) error {
	tag = strings.ToLower(strings.TrimSpace(tag))
	parent = strings.ToLower(strings.TrimSpace(parent))
	if tag == "" || parent == "" {
		return fmt.Errorf("memory: tag and parent cannot be empty")
	}
	if tag == parent {
		return fmt.Errorf("memory: tag cannot be its own parent")
	}

	now := time.Now().UTC()
	if _, err := s.ensureTag(ctx, parent, now); err != nil {
		return err
	}

	node, err := s.ensureTag(ctx, tag, now)
	if err != nil {
		return err
	}
	node.ParentTag = parent
	return s.store.PutTag(ctx, node)
}

// upsertTags bumps or lazily creates each tag node and returns the parent
// closure over the tag graph. A cycle guard bounds the walk in case the
// graph was linked into a loop externally.
func (s *Service) upsertTags(ctx context.Context, tags []string, now time.Time) ([]string, error) {
	parentSet := make(map[string]struct{})
	for _, tag := range tags {
		node, err := s.store.GetTag(ctx, tag)
		switch err {
		case nil:
			node.AccessCount++
			node.LastAccessedAt = now
		case ErrTagNotFound:
			node = &TagNode{
				Tag:            tag,
				Priority:       defaultTagPriority,
				AccessCount:    1,
				LastAccessedAt: now,
				DecayTau:       defaultTagDecayTau,
			}
		default:
			return nil, fmt.Errorf("memory: load tag %q: %w", tag, err)
		}
		if err := s.store.PutTag(ctx, node); err != nil {
			return nil, fmt.Errorf("memory: upsert tag %q: %w", tag, err)
		}

		seen := map[string]struct{}{tag: {}}
		current := node
		for current.ParentTag != "" {
			if _, cycle := seen[current.ParentTag]; cycle {
				break
			}
			seen[current.ParentTag] = struct{}{}
			parentSet[current.ParentTag] = struct{}{}
			parent, err := s.store.GetTag(ctx, current.ParentTag)
			if err != nil {
				break
			}
			current = parent
		}
	}

	if len(parentSet) == 0 {
		return nil, nil
	}
	parents := make([]string, 0, len(parentSet))
	for p := range parentSet {
		parents = append(parents, p)
	}
	sort.Strings(parents)
	return parents, nil
}

func (s *Service) ensureTag(ctx context.Context, tag string, now time.Time) (*TagNode, error) {
	node, err := s.store.GetTag(ctx, tag)
	if err == nil {
		return node, nil
	}
	if err != ErrTagNotFound {
		return nil, fmt.Errorf("memory: load tag %q: %w", tag, err)
	}
	node = &TagNode{
		Tag:            tag,
		Priority:       defaultTagPriority,
		LastAccessedAt: now,
		DecayTau:       defaultTagDecayTau,
	}
	if err := s.store.PutTag(ctx, node); err != nil {
		return nil, fmt.Errorf("memory: create tag %q: %w", tag, err)
	}
	return node, nil
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

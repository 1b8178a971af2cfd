package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// RecordStore is the persistence boundary for memory records and tag nodes.
// Implementations must enforce content-hash uniqueness through the hash
// index and serialize TouchRecord per record, since access bumps are
// read-modify-write and concurrent retrievals of the same record must not
// lose updates. Scoring reads may be eventually consistent; decay is always
// recomputed from the stored last-access timestamp.
type RecordStore interface {
	PutRecord(ctx context.Context, rec *MemoryRecord) error
	GetRecord(ctx context.Context, id string) (*MemoryRecord, error)
	GetRecordByHash(ctx context.Context, hash string) (*MemoryRecord, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]*MemoryRecord, error)

	// TouchRecord atomically increments the access count and sets the
	// last-access timestamp of one record.
	TouchRecord(ctx context.Context, id string, at time.Time) error

	PutTag(ctx context.Context, node *TagNode) error
	GetTag(ctx context.Context, tag string) (*TagNode, error)

	Close() error
}

// RecordFilter selects records server-side before ranking. Zero values mean
// "no constraint"; Tags filters on overlap (any shared tag).
type RecordFilter struct {
	Tier      Tier
	Tags      []string
	SessionID string
	MinScore  *float64
}

// matches reports whether a record passes the filter.
func (f RecordFilter) matches(rec *MemoryRecord) bool {
	if f.Tier != "" && rec.Tier != f.Tier {
		return false
	}
	if f.SessionID != "" && rec.SessionID != f.SessionID {
		return false
	}
	if f.MinScore != nil && rec.RetrievalScore < *f.MinScore {
		return false
	}
	if len(f.Tags) > 0 && !tagsOverlap(f.Tags, rec.Tags) {
		return false
	}
	return true
}

func tagsOverlap(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(w, h) {
				return true
			}
		}
	}
	return false
}

// InMemoryStore is a map-backed RecordStore for tests and ephemeral runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*MemoryRecord
	byHash  map[string]string
	tags    map[string]*TagNode
}

// NewInMemoryStore creates an empty in-memory record store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*MemoryRecord),
		byHash:  make(map[string]string),
		tags:    make(map[string]*TagNode),
	}
}

func (s *InMemoryStore) PutRecord(ctx context.Context, rec *MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = cloneRecord(rec)
	s.byHash[rec.ContentHash] = rec.ID
	return nil
}

func (s *InMemoryStore) GetRecord(ctx context.Context, id string) (*MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *InMemoryStore) GetRecordByHash(ctx context.Context, hash string) (*MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *InMemoryStore) ListRecords(ctx context.Context, filter RecordFilter) ([]*MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*MemoryRecord, 0, len(s.records))
	for _, rec := range s.records {
		if filter.matches(rec) {
			out = append(out, cloneRecord(rec))
		}
	}
	// Stable order for callers that rank afterwards.
	sort.Slice(out, func(i, j int) bool {
		if out[i].RetrievalScore != out[j].RetrievalScore {
			return out[i].RetrievalScore > out[j].RetrievalScore
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *InMemoryStore) TouchRecord(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.AccessCount++
	rec.LastAccessedAt = at
	return nil
}

func (s *InMemoryStore) PutTag(ctx context.Context, node *TagNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[node.Tag] = cloneTag(node)
	return nil
}

func (s *InMemoryStore) GetTag(ctx context.Context, tag string) (*TagNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.tags[tag]
	if !ok {
		return nil, ErrTagNotFound
	}
	return cloneTag(node), nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

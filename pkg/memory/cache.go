package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// CachedStore layers a ristretto admission cache over another RecordStore
// so hot records are served without a round trip to the backing store.
// Only point lookups by ID are cached; list and hash-index reads always go
// through, and any write path invalidates the cached copy. Access-stat
// staleness in the cache is harmless: decay is recomputed from the stored
// timestamp, and Touch invalidates before the next read.
type CachedStore struct {
	inner RecordStore
	cache *ristretto.Cache
}

// NewCachedStore wraps a record store with a cache holding roughly
// maxCostBytes of record content.
func NewCachedStore(inner RecordStore, maxCostBytes int64) (*CachedStore, error) {
	if maxCostBytes <= 0 {
		maxCostBytes = 64 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: create cache: %w", err)
	}
	return &CachedStore{inner: inner, cache: cache}, nil
}

func (s *CachedStore) PutRecord(ctx context.Context, rec *MemoryRecord) error {
	if err := s.inner.PutRecord(ctx, rec); err != nil {
		return err
	}
	s.cache.Set(rec.ID, cloneRecord(rec), int64(len(rec.Content)))
	return nil
}

func (s *CachedStore) GetRecord(ctx context.Context, id string) (*MemoryRecord, error) {
	if v, ok := s.cache.Get(id); ok {
		if rec, ok := v.(*MemoryRecord); ok {
			return cloneRecord(rec), nil
		}
	}
	rec, err := s.inner.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(id, cloneRecord(rec), int64(len(rec.Content)))
	return rec, nil
}

func (s *CachedStore) GetRecordByHash(ctx context.Context, hash string) (*MemoryRecord, error) {
	return s.inner.GetRecordByHash(ctx, hash)
}

func (s *CachedStore) ListRecords(ctx context.Context, filter RecordFilter) ([]*MemoryRecord, error) {
	return s.inner.ListRecords(ctx, filter)
}

func (s *CachedStore) TouchRecord(ctx context.Context, id string, at time.Time) error {
	s.cache.Del(id)
	return s.inner.TouchRecord(ctx, id, at)
}

func (s *CachedStore) PutTag(ctx context.Context, node *TagNode) error {
	return s.inner.PutTag(ctx, node)
}

func (s *CachedStore) GetTag(ctx context.Context, tag string) (*TagNode, error) {
	return s.inner.GetTag(ctx, tag)
}

func (s *CachedStore) Close() error {
	s.cache.Close()
	return s.inner.Close()
}

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultRedisPrefix namespaces all keys written by the RedisStore.
const defaultRedisPrefix = "mindloom:"

// RedisStore is a Redis-backed RecordStore for deployments where the
// pipeline runs against a hosted store rather than an embedded one.
// Records are JSON values; a ZSET keyed by retrieval score provides the
// ordered range queries the ranking layer needs.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a record store over the given Redis client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) recKey(id string) string    { return s.prefix + "rec:" + id }
func (s *RedisStore) hashKey(hash string) string { return s.prefix + "hash:" + hash }
func (s *RedisStore) tagKey(tag string) string   { return s.prefix + "tag:" + tag }
func (s *RedisStore) scoreKey() string           { return s.prefix + "score" }

func (s *RedisStore) PutRecord(ctx context.Context, rec *MemoryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("memory: marshal record: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recKey(rec.ID), data, 0)
		pipe.Set(ctx, s.hashKey(rec.ContentHash), rec.ID, 0)
		pipe.ZAdd(ctx, s.scoreKey(), redis.Z{Score: rec.RetrievalScore, Member: rec.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("memory: redis put: %w", err)
	}
	return nil
}

func (s *RedisStore) GetRecord(ctx context.Context, id string) (*MemoryRecord, error) {
	data, err := s.client.Get(ctx, s.recKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("memory: redis get: %w", err)
	}
	var rec MemoryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("memory: unmarshal record: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) GetRecordByHash(ctx context.Context, hash string) (*MemoryRecord, error) {
	id, err := s.client.Get(ctx, s.hashKey(hash)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("memory: redis hash lookup: %w", err)
	}
	return s.GetRecord(ctx, id)
}

// ListRecords walks the score ZSET highest-first and filters client-side.
// The ZSET keeps stored-score order; decay re-ranking happens above the
// store, as everywhere else.
func (s *RedisStore) ListRecords(ctx context.Context, filter RecordFilter) ([]*MemoryRecord, error) {
	ids, err := s.client.ZRevRange(ctx, s.scoreKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("memory: redis range: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("memory: redis mget: %w", err)
	}

	records := make([]*MemoryRecord, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue // evicted between range and fetch
		}
		var rec MemoryRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("memory: unmarshal record: %w", err)
		}
		if filter.matches(&rec) {
			records = append(records, cloneRecord(&rec))
		}
	}
	return records, nil
}

// TouchRecord bumps access stats under an optimistic WATCH transaction so
// concurrent retrievals of the same record never lose an increment.
func (s *RedisStore) TouchRecord(ctx context.Context, id string, at time.Time) error {
	key := s.recKey(id)
	touch := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var rec MemoryRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		rec.AccessCount++
		rec.LastAccessedAt = at
		updated, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < touchRetries; i++ {
		err = s.client.Watch(ctx, touch, key)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return err
}

func (s *RedisStore) PutTag(ctx context.Context, node *TagNode) error {
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("memory: marshal tag: %w", err)
	}
	if err := s.client.Set(ctx, s.tagKey(node.Tag), data, 0).Err(); err != nil {
		return fmt.Errorf("memory: redis put tag: %w", err)
	}
	return nil
}

func (s *RedisStore) GetTag(ctx context.Context, tag string) (*TagNode, error) {
	data, err := s.client.Get(ctx, s.tagKey(tag)).Bytes()
	if err == redis.Nil {
		return nil, ErrTagNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("memory: redis get tag: %w", err)
	}
	var node TagNode
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("memory: unmarshal tag: %w", err)
	}
	return &node, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

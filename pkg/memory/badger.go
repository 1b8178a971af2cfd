package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes in the shared Badger keyspace.
const (
	recKeyPrefix  = "mem:rec:"
	hashKeyPrefix = "mem:hash:"
	tagKeyPrefix  = "mem:tag:"
)

// touchRetries bounds optimistic-transaction retries on access bumps. A
// retrieval can touch many records at once, so contention on a hot record
// is expected and the bound is generous.
const touchRetries = 16

// BadgerStore is a Badger-backed RecordStore. The DB lifecycle is managed
// by the caller; Close is a no-op.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a record store over an open Badger DB.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func recKey(id string) []byte    { return []byte(recKeyPrefix + id) }
func hashKey(hash string) []byte { return []byte(hashKeyPrefix + hash) }
func tagKey(tag string) []byte   { return []byte(tagKeyPrefix + tag) }

// PutRecord writes the record and its content-hash index entry in one
// transaction, keeping dedup lookups consistent with the record itself.
func (s *BadgerStore) PutRecord(ctx context.Context, rec *MemoryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("memory: marshal record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(recKey(rec.ID), data); err != nil {
			return err
		}
		return txn.Set(hashKey(rec.ContentHash), []byte(rec.ID))
	})
}

func (s *BadgerStore) GetRecord(ctx context.Context, id string) (*MemoryRecord, error) {
	var rec MemoryRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recKey(id))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BadgerStore) GetRecordByHash(ctx context.Context, hash string) (*MemoryRecord, error) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(hashKey(hash))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetRecord(ctx, id)
}

func (s *BadgerStore) ListRecords(ctx context.Context, filter RecordFilter) ([]*MemoryRecord, error) {
	var records []*MemoryRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec MemoryRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if filter.matches(&rec) {
				records = append(records, cloneRecord(&rec))
			}
		}
		return nil
	})
	return records, err
}

// TouchRecord bumps access stats inside a transaction. Badger's
// serializable transactions surface concurrent bumps as ErrConflict, which
// is retried a bounded number of times so concurrent retrievals of the
// same record never lose an increment.
func (s *BadgerStore) TouchRecord(ctx context.Context, id string, at time.Time) error {
	var lastErr error
	for i := 0; i < touchRetries; i++ {
		lastErr = s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(recKey(id))
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			var rec MemoryRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			rec.AccessCount++
			rec.LastAccessedAt = at
			data, err := json.Marshal(&rec)
			if err != nil {
				return err
			}
			return txn.Set(recKey(id), data)
		})
		if lastErr != badger.ErrConflict {
			return lastErr
		}
	}
	return lastErr
}

func (s *BadgerStore) PutTag(ctx context.Context, node *TagNode) error {
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("memory: marshal tag: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tagKey(node.Tag), data)
	})
}

func (s *BadgerStore) GetTag(ctx context.Context, tag string) (*TagNode, error) {
	var node TagNode
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tagKey(tag))
		if err == badger.ErrKeyNotFound {
			return ErrTagNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &node)
		})
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// Close is a no-op; the Badger DB lifecycle is managed externally.
func (s *BadgerStore) Close() error {
	return nil
}

package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// ChainStore persists terminal chains. Chains are written exactly once;
// there is no update path.
type ChainStore interface {
	PutChain(ctx context.Context, c *ReasoningChain) error
	GetChain(ctx context.Context, traceID string) (*ReasoningChain, error)
	Close() error
}

// InMemoryChainStore is a map-backed ChainStore for tests and ephemeral
// runs.
type InMemoryChainStore struct {
	mu     sync.RWMutex
	chains map[string]*ReasoningChain
}

// NewInMemoryChainStore creates an empty in-memory chain store.
func NewInMemoryChainStore() *InMemoryChainStore {
	return &InMemoryChainStore{chains: make(map[string]*ReasoningChain)}
}

func (s *InMemoryChainStore) PutChain(ctx context.Context, c *ReasoningChain) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("chain: marshal chain: %w", err)
	}
	var clone ReasoningChain
	if err := json.Unmarshal(data, &clone); err != nil {
		return fmt.Errorf("chain: clone chain: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains[c.TraceID] = &clone
	return nil
}

func (s *InMemoryChainStore) GetChain(ctx context.Context, traceID string) (*ReasoningChain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chains[traceID]
	if !ok {
		return nil, ErrChainNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *InMemoryChainStore) Close() error { return nil }

const chainKeyPrefix = "chain:trace:"

// BadgerChainStore is a Badger-backed ChainStore sharing the DB with the
// memory record store.
type BadgerChainStore struct {
	db *badger.DB
}

// NewBadgerChainStore creates a chain store over an open Badger DB.
func NewBadgerChainStore(db *badger.DB) *BadgerChainStore {
	return &BadgerChainStore{db: db}
}

func chainKey(traceID string) []byte { return []byte(chainKeyPrefix + traceID) }

func (s *BadgerChainStore) PutChain(ctx context.Context, c *ReasoningChain) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("chain: marshal chain: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chainKey(c.TraceID), data)
	})
}

func (s *BadgerChainStore) GetChain(ctx context.Context, traceID string) (*ReasoningChain, error) {
	var c ReasoningChain
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chainKey(traceID))
		if err == badger.ErrKeyNotFound {
			return ErrChainNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &c)
		})
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Close is a no-op; the Badger DB lifecycle is managed externally.
func (s *BadgerChainStore) Close() error { return nil }

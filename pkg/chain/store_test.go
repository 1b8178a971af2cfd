package chain

import (
	"context"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
)

func testChainStores(t *testing.T) map[string]ChainStore {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close badger: %v", err)
		}
	})
	return map[string]ChainStore{
		"inmemory": NewInMemoryChainStore(),
		"badger":   NewBadgerChainStore(db),
	}
}

func TestChainStore_RoundTrip(t *testing.T) {
	for name, store := range testChainStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			c := NewChain("what is x", 8000)
			c.FinalAnswer = "x is y"
			c.Confidence = 0.72
			c.Steps = sampleSteps()
			c.Phase = PhaseDone

			if err := store.PutChain(ctx, c); err != nil {
				t.Fatalf("PutChain: %v", err)
			}

			got, err := store.GetChain(ctx, c.TraceID)
			if err != nil {
				t.Fatalf("GetChain: %v", err)
			}
			if got.FinalAnswer != c.FinalAnswer || got.Confidence != c.Confidence {
				t.Errorf("chain mismatch: %+v", got)
			}
			if len(got.Steps) != len(c.Steps) {
				t.Errorf("steps = %d, want %d", len(got.Steps), len(c.Steps))
			}
			if got.Phase != PhaseDone {
				t.Errorf("phase = %s, want done", got.Phase)
			}

			if _, err := store.GetChain(ctx, "missing"); err != ErrChainNotFound {
				t.Errorf("missing chain: err = %v, want ErrChainNotFound", err)
			}
		})
	}
}

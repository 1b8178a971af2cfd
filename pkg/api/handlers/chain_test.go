package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mindloom/mindloom/pkg/chain"
	"github.com/mindloom/mindloom/pkg/memory"
	"github.com/mindloom/mindloom/pkg/provider/extractive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChainFixture(t *testing.T) (*ChainHandler, *memory.Service) {
	t.Helper()
	svc := memory.NewService(memory.NewInMemoryStore())
	store := chain.NewInMemoryChainStore()
	engine := chain.NewEngine(svc, store, extractive.New())
	return NewChainHandler(engine, store, chain.DefaultConfig(), nopTestLogger{}), svc
}

func chainRouter(h *ChainHandler) chi.Router {
	r := chi.NewRouter()
	r.Post("/api/v1/chains", h.ExecuteChain)
	r.Get("/api/v1/chains/{traceID}", h.GetChain)
	return r
}

func seedChainMemories(t *testing.T, svc *memory.Service) {
	t.Helper()
	contents := []string{
		"The ingest service batches incoming documents and writes them to the store in groups of fifty. Batch writes cut commit overhead dramatically and keep the write path predictable even when upstream producers burst well beyond the steady-state rate.",
		"Deploys roll out one availability zone at a time. A zone must pass its health gate before the rollout proceeds, and any regression rolls the zone back automatically without operator involvement.",
	}
	for _, c := range contents {
		_, _, err := svc.Store(context.Background(), memory.StoreInput{
			Content:    c,
			Tags:       []string{"ingest", "deploys", "service"},
			Importance: 0.8,
		})
		require.NoError(t, err)
	}
}

func TestExecuteChain(t *testing.T) {
	h, svc := newChainFixture(t)
	seedChainMemories(t, svc)
	r := chainRouter(h)

	body := `{"query":"How does the ingest service handle batches during deploys?"}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/chains", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var result chain.ReasoningChain
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.NotEmpty(t, result.TraceID)
	assert.NotEmpty(t, result.FinalAnswer)
	assert.NotEmpty(t, result.AuditHash)
	assert.Equal(t, chain.PhaseDone, result.Phase)

	// The persisted chain is retrievable by trace ID.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chains/"+result.TraceID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var loaded chain.ReasoningChain
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&loaded))
	assert.Equal(t, result.TraceID, loaded.TraceID)
	assert.Equal(t, result.AuditHash, loaded.AuditHash)
}

func TestExecuteChain_ConfigOverrides(t *testing.T) {
	h, svc := newChainFixture(t)
	seedChainMemories(t, svc)
	r := chainRouter(h)

	body := `{"query":"batching strategy","token_budget":2000,"enable_self_correction":false,"max_iterations":1}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/chains", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var result chain.ReasoningChain
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, 2000, result.TokenBudget)
	assert.Equal(t, 1, result.ReasonSteps())
}

func TestExecuteChain_EmptyQuery(t *testing.T) {
	h, _ := newChainFixture(t)
	r := chainRouter(h)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/chains", strings.NewReader(`{"query":"  "}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/chains", strings.NewReader(`{bad`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetChain_NotFound(t *testing.T) {
	h, _ := newChainFixture(t)
	r := chainRouter(h)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chains/no-such-trace", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mindloom/mindloom/pkg/api/response"
	"github.com/mindloom/mindloom/pkg/chain"
)

// ChainHandler handles reasoning-chain API endpoints.
type ChainHandler struct {
	engine *chain.Engine
	store  chain.ChainStore
	base   chain.Config
	logger handlerLogger
}

// NewChainHandler creates a new chain handler. The base config supplies
// defaults that individual requests may override.
func NewChainHandler(engine *chain.Engine, store chain.ChainStore, base chain.Config, log handlerLogger) *ChainHandler {
	return &ChainHandler{
		engine: engine,
		store:  store,
		base:   base,
		logger: log,
	}
}

type executeChainRequest struct {
	Query                string   `json:"query"`
	TokenBudget          *int     `json:"token_budget,omitempty"`
	MinConfidence        *float64 `json:"min_confidence,omitempty"`
	MinProvenance        *float64 `json:"min_provenance,omitempty"`
	EnableSelfCorrection *bool    `json:"enable_self_correction,omitempty"`
	MaxIterations        *int     `json:"max_iterations,omitempty"`
	EntropySamples       *int     `json:"entropy_samples,omitempty"`
}

// ExecuteChain handles POST /api/v1/chains
func (h *ChainHandler) ExecuteChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req executeChainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	cfg := h.base
	if req.TokenBudget != nil {
		cfg.TokenBudget = *req.TokenBudget
	}
	if req.MinConfidence != nil {
		cfg.MinConfidence = *req.MinConfidence
	}
	if req.MinProvenance != nil {
		cfg.MinProvenance = *req.MinProvenance
	}
	if req.EnableSelfCorrection != nil {
		cfg.EnableSelfCorrection = *req.EnableSelfCorrection
	}
	if req.MaxIterations != nil {
		cfg.MaxIterations = *req.MaxIterations
	}
	if req.EntropySamples != nil {
		cfg.EntropySamples = *req.EntropySamples
	}

	result, err := h.engine.Execute(ctx, req.Query, cfg)
	if err != nil {
		if errors.Is(err, chain.ErrEmptyQuery) {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Query is required", getRequestID(ctx))
			return
		}
		h.logger.Error("Chain execution failed", "error", err)
		details := map[string]interface{}{}
		if result != nil {
			// The aborted chain is persisted and retrievable by trace ID.
			details["trace_id"] = result.TraceID
		}
		response.ErrorWithDetails(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Chain execution failed", details, getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, result)
}

// GetChain handles GET /api/v1/chains/{traceID}
func (h *ChainHandler) GetChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := chi.URLParam(r, "traceID")
	if traceID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Trace ID is required", getRequestID(ctx))
		return
	}

	result, err := h.store.GetChain(ctx, traceID)
	if err != nil {
		if errors.Is(err, chain.ErrChainNotFound) {
			response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "Chain not found", getRequestID(ctx))
			return
		}
		h.logger.Error("Failed to load chain", "trace_id", traceID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to load chain", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, result)
}

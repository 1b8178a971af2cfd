package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mindloom/mindloom/pkg/api/response"
	"github.com/mindloom/mindloom/pkg/memory"
)

// MemoryHandler handles memory-related API endpoints.
type MemoryHandler struct {
	svc    *memory.Service
	logger handlerLogger
}

type handlerLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(svc *memory.Service, log handlerLogger) *MemoryHandler {
	return &MemoryHandler{
		svc:    svc,
		logger: log,
	}
}

// --- Request/Response types ---

type storeMemoryRequest struct {
	Content    string   `json:"content"`
	Tags       []string `json:"tags,omitempty"`
	Importance float64  `json:"importance"`
	Source     string   `json:"source,omitempty"`
	UserID     string   `json:"user_id,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
}

type storeMemoryResponse struct {
	Record  *memory.MemoryRecord `json:"record"`
	Created bool                 `json:"created"`
}

type compressResponse struct {
	Compressed bool   `json:"compressed"`
	ID         string `json:"id"`
}

type tagParentRequest struct {
	Tag    string `json:"tag"`
	Parent string `json:"parent"`
}

// StoreMemory handles POST /api/v1/memories
func (h *MemoryHandler) StoreMemory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req storeMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	rec, created, err := h.svc.Store(ctx, memory.StoreInput{
		Content:    req.Content,
		Tags:       req.Tags,
		Importance: req.Importance,
		Source:     req.Source,
		UserID:     req.UserID,
		SessionID:  req.SessionID,
	})
	if err != nil {
		if errors.Is(err, memory.ErrEmptyContent) || errors.Is(err, memory.ErrInvalidImportance) {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
			return
		}
		h.logger.Error("Failed to store memory", "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to store memory", getRequestID(ctx))
		return
	}

	status := http.StatusCreated
	if !created {
		// Duplicate content resolves to the existing record.
		status = http.StatusOK
	}
	response.JSON(w, status, storeMemoryResponse{Record: rec, Created: created})
}

// RetrieveMemories handles GET /api/v1/memories
func (h *MemoryHandler) RetrieveMemories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := r.URL.Query()

	q := memory.RetrievalQuery{
		Text:      params.Get("query"),
		Tier:      memory.Tier(params.Get("tier")),
		SessionID: params.Get("session_id"),
	}
	if tags, ok := params["tag"]; ok {
		q.Tags = tags
	}
	if limitStr := params.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "limit must be a positive integer", getRequestID(ctx))
			return
		}
		q.Limit = limit
	}
	if minStr := params.Get("min_score"); minStr != "" {
		min, err := strconv.ParseFloat(minStr, 64)
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "min_score must be a number", getRequestID(ctx))
			return
		}
		q.MinScore = &min
	}

	results, err := h.svc.Retrieve(ctx, q)
	if err != nil {
		h.logger.Error("Failed to retrieve memories", "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to retrieve memories", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// CompressMemory handles POST /api/v1/memories/{id}/compress
func (h *MemoryHandler) CompressMemory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if id == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Record ID is required", getRequestID(ctx))
		return
	}

	compressed, err := h.svc.Compress(ctx, id)
	if err != nil {
		h.logger.Error("Failed to compress memory", "record_id", id, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to compress memory", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, compressResponse{Compressed: compressed, ID: id})
}

// GetHierarchy handles GET /api/v1/memories/hierarchy
func (h *MemoryHandler) GetHierarchy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	hierarchy, err := h.svc.BuildHierarchy(ctx)
	if err != nil {
		h.logger.Error("Failed to build hierarchy", "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to build hierarchy", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, hierarchy)
}

// GetStats handles GET /api/v1/memories/stats
func (h *MemoryHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.svc.GetStats(ctx)
	if err != nil {
		h.logger.Error("Failed to get memory stats", "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to get memory stats", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, stats)
}

// SetTagParent handles PUT /api/v1/tags/parent
func (h *MemoryHandler) SetTagParent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req tagParentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	if err := h.svc.SetTagParent(ctx, req.Tag, req.Parent); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{
		"tag":    req.Tag,
		"parent": req.Parent,
	})
}

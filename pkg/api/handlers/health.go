package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/mindloom/mindloom/pkg/api/response"
	"github.com/mindloom/mindloom/pkg/memory"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	svc       *memory.Service
	version   string
	startTime time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(svc *memory.Service, version string) *HealthHandler {
	return &HealthHandler{
		svc:       svc,
		version:   version,
		startTime: time.Now(),
	}
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles the /ready endpoint (readiness probe). The service is ready
// when the backing record store answers.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := h.svc.GetStats(ctx); err != nil {
		response.JSON(w, http.StatusServiceUnavailable, map[string]bool{
			"ready": false,
		})
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{
		"ready": true,
	})
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	}
	if stats, err := h.svc.GetStats(r.Context()); err == nil {
		status["memory"] = stats
	}
	response.JSON(w, http.StatusOK, status)
}

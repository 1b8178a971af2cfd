package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mindloom/mindloom/config"
	"github.com/mindloom/mindloom/pkg/api/handlers"
	"github.com/mindloom/mindloom/pkg/chain"
	"github.com/mindloom/mindloom/pkg/logger"
	"github.com/mindloom/mindloom/pkg/memory"
	"github.com/mindloom/mindloom/pkg/provider/extractive"
)

type recordedRequest struct {
	method string
	path   string
	status string
}

type stubMetrics struct {
	requests []recordedRequest
}

func (s *stubMetrics) RecordHTTPRequest(method, path, status string, _ time.Duration) {
	s.requests = append(s.requests, recordedRequest{method, path, status})
}
func (s *stubMetrics) IncActiveConnections() {}
func (s *stubMetrics) DecActiveConnections() {}

func testLogger() logger.Logger {
	return logger.New(&logger.Config{
		Level:  logger.ErrorLevel,
		Format: "json",
		Output: "stdout",
	})
}

func testHandlers(t *testing.T) (*Handlers, *stubMetrics) {
	t.Helper()
	svc := memory.NewService(memory.NewInMemoryStore())
	store := chain.NewInMemoryChainStore()
	engine := chain.NewEngine(svc, store, extractive.New())
	log := testLogger()
	metrics := &stubMetrics{}
	return &Handlers{
		Memory:    handlers.NewMemoryHandler(svc, log),
		Chain:     handlers.NewChainHandler(engine, store, chain.DefaultConfig(), log),
		Verify:    handlers.NewVerifyHandler(nil),
		Health:    handlers.NewHealthHandler(svc, "test"),
		WebSocket: handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{}),
		Metrics:   metrics,
	}, metrics
}

func TestRouter_Routes(t *testing.T) {
	h, _ := testHandlers(t)
	cfg := config.DefaultConfig()
	router := NewRouter(cfg, testLogger(), h)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/ready", "", http.StatusOK},
		{http.MethodGet, "/status", "", http.StatusOK},
		{http.MethodGet, "/api/v1/memories/stats", "", http.StatusOK},
		{http.MethodGet, "/api/v1/memories/hierarchy", "", http.StatusOK},
		{http.MethodPost, "/api/v1/memories", `{"content":"route smoke test content","importance":0.5}`, http.StatusCreated},
		{http.MethodPost, "/api/v1/chains", `{"query":"route smoke test"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/verify", `{"answer":"a","confidence":0.9}`, http.StatusOK},
		{http.MethodGet, "/api/v1/chains/missing", "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		var body *strings.Reader
		if tt.body != "" {
			body = strings.NewReader(tt.body)
		} else {
			body = strings.NewReader("")
		}
		req := httptest.NewRequest(tt.method, tt.path, body)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}
}

func TestRouter_RequestIDHeader(t *testing.T) {
	h, _ := testHandlers(t)
	router := NewRouter(config.DefaultConfig(), testLogger(), h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID response header")
	}

	// A caller-supplied ID is echoed back.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}
}

func TestRouter_MetricsMiddleware(t *testing.T) {
	h, metrics := testHandlers(t)
	router := NewRouter(config.DefaultConfig(), testLogger(), h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if len(metrics.requests) != 1 {
		t.Fatalf("recorded requests = %d, want 1", len(metrics.requests))
	}
	if metrics.requests[0].path != "/health" || metrics.requests[0].status != "200" {
		t.Errorf("unexpected recording: %+v", metrics.requests[0])
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	h, _ := testHandlers(t)
	router := NewRouter(config.DefaultConfig(), testLogger(), h)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/memories", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("expected Access-Control-Allow-Methods header")
	}
}

// Package api provides HTTP API server components.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mindloom/mindloom/config"
	"github.com/mindloom/mindloom/pkg/api/handlers"
	"github.com/mindloom/mindloom/pkg/api/middleware"
	"github.com/mindloom/mindloom/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Memory handles memory-record endpoints
	Memory *handlers.MemoryHandler

	// Chain handles reasoning-chain endpoints
	Chain *handlers.ChainHandler

	// Verify handles standalone verification endpoints
	Verify *handlers.VerifyHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// WebSocket streams chain events to subscribers
	WebSocket *handlers.WebSocketHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, handlers *Handlers) chi.Router {
	r := chi.NewRouter()

	// Register global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	// Add metrics middleware if provided
	if handlers.Metrics != nil {
		r.Use(middleware.Metrics(handlers.Metrics))
	}

	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))

	requestTimeout := cfg.Server.HTTP.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	r.Use(middleware.Timeout(requestTimeout))

	// Register routes
	RegisterRoutes(r, handlers)

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, handlers *Handlers) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Memory routes
		if handlers.Memory != nil {
			r.Route("/memories", func(r chi.Router) {
				r.Post("/", handlers.Memory.StoreMemory)
				r.Get("/", handlers.Memory.RetrieveMemories)
				r.Get("/hierarchy", handlers.Memory.GetHierarchy)
				r.Get("/stats", handlers.Memory.GetStats)
				r.Post("/{id}/compress", handlers.Memory.CompressMemory)
			})
			r.Put("/tags/parent", handlers.Memory.SetTagParent)
		}

		// Chain routes
		if handlers.Chain != nil {
			r.Route("/chains", func(r chi.Router) {
				r.Post("/", handlers.Chain.ExecuteChain)
				r.Get("/{traceID}", handlers.Chain.GetChain)
			})
		}

		// Verification routes
		if handlers.Verify != nil {
			r.Post("/verify", handlers.Verify.Verify)
		}
	})

	// Health check routes (not versioned)
	if handlers.Health != nil {
		r.Get("/health", handlers.Health.Health)
		r.Get("/ready", handlers.Health.Ready)
		r.Get("/status", handlers.Health.Status)
	}

	// Chain event stream
	if handlers.WebSocket != nil {
		r.Get("/ws/chains", handlers.WebSocket.ServeHTTP)
	}
}

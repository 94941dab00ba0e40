// Package handler provides HTTP handlers for the live-fixture API and the
// WebSocket push channel. Handlers call the engine directly; there is no
// service layer in between.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/albapepper/scoracle-live/internal/api/respond"
	"github.com/albapepper/scoracle-live/internal/cache"
	"github.com/albapepper/scoracle-live/internal/config"
	"github.com/albapepper/scoracle-live/internal/engine"
	"github.com/albapepper/scoracle-live/internal/subscription"
)

// Pinger checks the persistence backend. Nil in memory mode.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	engine   *engine.Engine
	registry *subscription.Registry
	cache    *cache.Cache
	cfg      *config.Config
	db       Pinger
	logger   *slog.Logger
}

// New creates a Handler with shared dependencies.
func New(eng *engine.Engine, reg *subscription.Registry, c *cache.Cache, cfg *config.Config, db Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		engine:   eng,
		registry: reg,
		cache:    c,
		cfg:      cfg,
		db:       db,
		logger:   logger,
	}
}

// Root serves API info at /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":        "Scoracle Live API",
		"version":     "1.0.0",
		"status":      "running",
		"persistence": h.cfg.Persistence,
		"push":        "/ws",
		"features": []string{
			"per_fixture_serialized_commands",
			"ordered_websocket_fanout",
			"match_clock",
			"etag_snapshots",
		},
	})
}

// HealthCheck returns basic health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"liveFixtures": len(h.engine.ListLiveFixtures()),
		"rooms":        len(h.registry.FixtureIDs()),
		"clocks":       len(h.engine.Clock().Running()),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"database":  "not configured",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	if err := h.db.HealthCheck(r.Context()); err != nil {
		h.logger.Warn("Database health check failed", "error", err)
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

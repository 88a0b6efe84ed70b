package handlers

import (
	"context"
	"projectpilot/internal/services"
	"time"

	"github.com/gofiber/fiber/v2"
)

// CacheStatsSource reports project cache counts
type CacheStatsSource interface {
	Stats() services.CacheStats
}

// Pinger is a dependency that can report its reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler handles health check requests
type HealthHandler struct {
	cache        CacheStatsSource
	dependencies map[string]Pinger
}

// NewHealthHandler creates a new health handler. Nil dependencies are skipped.
func NewHealthHandler(cache CacheStatsSource, dependencies map[string]Pinger) *HealthHandler {
	deps := make(map[string]Pinger, len(dependencies))
	for name, p := range dependencies {
		if p != nil {
			deps[name] = p
		}
	}
	return &HealthHandler{cache: cache, dependencies: deps}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "healthy"
	checks := make(map[string]string, len(h.dependencies))
	for name, dep := range h.dependencies {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	stats := h.cache.Stats()
	return c.JSON(fiber.Map{
		"status":          status,
		"cached_projects": stats.Entries,
		"subscriptions":   stats.Subscriptions,
		"dependencies":    checks,
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}

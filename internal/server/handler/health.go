package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger checks connectivity of one backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint, probing each registered
// backing service.
type HealthHandler struct {
	components map[string]Pinger
	logger     *slog.Logger
}

// NewHealthHandler creates a HealthHandler. components maps a name like
// "postgres" or "redis" to its connectivity check; nil entries are skipped.
func NewHealthHandler(components map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		components: components,
		logger:     logger,
	}
}

// HealthCheck responds with the per-component status. Any failing component
// degrades the overall status and the response code to 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	overall := "ok"
	status := http.StatusOK
	components := make(map[string]string, len(h.components))

	for name, p := range h.components {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			components[name] = "unavailable"
			overall = "degraded"
			status = http.StatusServiceUnavailable
			h.logger.Warn("health: component check failed",
				slog.String("component", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, status, map[string]any{
		"status":     overall,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

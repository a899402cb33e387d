package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// HealthResponse is the body of GET /api/health
type HealthResponse struct {
	Status     string    `json:"status"`
	Version    string    `json:"version"`
	Timestamp  time.Time `json:"timestamp"`
	Uptime     string    `json:"uptime"`
	Reductions int       `json:"reductions"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	service ReductionService
	version string
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service ReductionService, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		version: version,
		started: time.Now(),
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:     "ok",
		Version:    h.version,
		Timestamp:  time.Now().UTC(),
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Reductions: len(h.service.List()),
	})
}

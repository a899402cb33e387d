package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/geisspaul/MoProMa-Auswertung/internal/config"
	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/middleware"
)

// RouterConfig holds the dependencies of the router
type RouterConfig struct {
	Service ReductionService
	Server  config.ServerConfig
	Version string
	// Metrics serves /metrics when set
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter builds the HTTP routes of the reduction service
func NewRouter(cfg RouterConfig) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errorHandler := apperrors.NewErrorHandler(logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.TraceID)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.SecurityHeaders)

	r.NotFound(errorHandler.NotFound)

	var submit func(http.Handler) http.Handler
	if rl := cfg.Server.RateLimit; rl.Enabled {
		submit = middleware.NewRateLimiter(rl.RPS, rl.Burst, logger).Handler
	}

	health := NewHealthHandler(cfg.Service, cfg.Version, logger)
	reductions := NewReductionHandler(cfg.Service, cfg.Server.MaxBodyBytes, submit, logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/health", health.HealthCheck)
		r.Route("/v1", func(r chi.Router) {
			r.Mount("/reductions", reductions.Routes())
		})
	})

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	return r
}

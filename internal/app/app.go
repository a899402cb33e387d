package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/geisspaul/MoProMa-Auswertung/internal/config"
	"github.com/geisspaul/MoProMa-Auswertung/internal/infrastructure"
	"github.com/geisspaul/MoProMa-Auswertung/internal/services"
	handlers "github.com/geisspaul/MoProMa-Auswertung/internal/transport/http"
)

// Version is reported by the health endpoint
const Version = infrastructure.ServiceVersion

// Application represents the main application container
type Application struct {
	Config           *config.Config
	Router           chi.Router
	Server           *http.Server
	ReductionService *services.ReductionService
	OTelProviders    *infrastructure.OTelProviders
	Logger           *slog.Logger

	listener net.Listener
}

// NewApplication loads the configuration at configPath and wires the
// application
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, err
	}
	return New(cfg, providers, logger)
}

// New wires the application from an already loaded configuration
func New(cfg *config.Config, providers *infrastructure.OTelProviders, logger *slog.Logger) (*Application, error) {
	if providers == nil {
		providers = infrastructure.NoopProviders()
	}

	metrics, err := infrastructure.CreatePipelineMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	svc, err := services.NewReductionService(cfg, providers.Tracer, metrics, logger)
	if err != nil {
		return nil, err
	}

	a := &Application{
		Config:           cfg,
		ReductionService: svc,
		OTelProviders:    providers,
		Logger:           logger,
	}
	a.Router = handlers.NewRouter(handlers.RouterConfig{
		Service: svc,
		Server:  cfg.Server,
		Version: Version,
		Metrics: providers.PrometheusHTTP,
		Logger:  logger,
	})
	a.createServer()
	return a, nil
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Addr returns the address the server listens on once started
func (a *Application) Addr() string {
	if a.listener == nil {
		return a.Server.Addr
	}
	return a.listener.Addr().String()
}

// Start starts serving in the background. A serve failure calls cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	a.listener = ln

	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "application started",
		slog.String("version", Version),
		slog.String("address", a.Addr()),
		slog.String("data_dir", a.Config.Paths.DataDir))
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return nil
}

// Run serves until interrupted or the server fails
func (a *Application) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	<-ctx.Done()
	a.Logger.InfoContext(ctx, "received shutdown signal")
	return a.Stop(ctx)
}

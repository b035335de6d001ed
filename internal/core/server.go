// Package core provides the API chassis for the risk service: a chi router
// with the cross-cutting middleware chain (panic recovery, request IDs,
// logging, CORS, compression, metrics) and the JSON response envelope that
// every handler writes through.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"resilience/internal/config"
)

// Server holds the router and its cross-cutting dependencies.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   HTTPMetrics

	// HealthChecks are run by GET /health.
	HealthChecks []HealthChecker
	// MetricsHandler is mounted at GET /metrics when set.
	MetricsHandler http.Handler
	// V1RouteRegistrars mount the domain handlers under /v1. main.go fills
	// this in so core does not import the handler packages.
	V1RouteRegistrars []RouteRegistrar
	// Closers are released in order on Shutdown.
	Closers []func() error

	router *chi.Mux
}

// NewServer validates the critical dependencies and prepares an empty
// router. Callers register handlers and then call MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi.Mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases resources registered in Closers. All closers run even if
// one fails.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	var errs []error
	for _, closeFn := range s.Closers {
		if err := closeFn(); err != nil {
			s.Logger.ErrorContext(ctx, "error releasing server resource", "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}

// Package core provides the API chassis for the OpsDeck platform. It builds
// the chi router and enforces the cross-cutting concerns -- security, logging,
// observability, and error handling -- before requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"opsdeck/internal/config"
	"opsdeck/internal/observability"
	"opsdeck/internal/types"
)

// KeySource resolves API key records by their public prefix. Implemented by
// db.APIKeyRepository; the interface exists so auth middleware tests can
// substitute an in-memory source.
type KeySource interface {
	GetByPrefix(ctx context.Context, prefix string) (key *types.APIKey, ok bool, err error)
}

// RouteRegistrar mounts a domain handler's routes under /v1. Registrars are
// populated by the application entry point; the indirection avoids import
// cycles between core and handler packages.
type RouteRegistrar func(r chi.Router)

// Server bundles the API's cross-cutting dependencies so tests can inject
// fakes and environments can wire distinct implementations.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   observability.MetricsCollector
	Keys      KeySource

	// HealthProbes are checked concurrently by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount domain handlers under /v1.
	V1RouteRegistrars []RouteRegistrar

	router  *chi.Mux
	closers []func(context.Context) error
}

// NewServer initializes the chassis. The caller mounts routes afterwards via
// MountRoutes; the separation lets tests customize route registration.
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
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers a cleanup function (connection pool close, client
// disconnect) to run during Shutdown, in registration order.
func (s *Server) OnShutdown(fn func(context.Context) error) {
	s.closers = append(s.closers, fn)
}

// Shutdown runs registered cleanup functions. The first failure is returned
// but every closer still runs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var firstErr error
	for _, fn := range s.closers {
		if err := fn(ctx); err != nil {
			s.Logger.Error("shutdown cleanup failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.Logger.Info("server shutdown complete")
	return firstErr
}

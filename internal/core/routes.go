package core

import (
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout is the soft deadline applied to request contexts when
// the config does not specify one.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in
// request logs to prevent accidental leakage of credentials.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
}

// MountRoutes registers the global middleware chain, the /v1 handler group,
// and the public health endpoint.
//
// Middleware order matters:
//  1. Recoverer        - outermost, catches all panics.
//  2. ContextTimeout   - soft deadline before upstream/infra hard timeouts.
//  3. RequestID        - correlation ID for tracing.
//  4. SecurityHeaders  - present on every response, including errors.
//  5. RequestLogger    - structured logging with redacted headers.
//  6. Metrics          - latency and count recording.
//  7. Auth             - resolves the Actor, injects business scope.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(s.MetricsMiddleware)
	s.router.Use(s.AuthMiddleware)

	s.router.Route("/v1", s.mountV1)
	s.router.Get("/health", s.HandleHealth)
}

// mountV1 registers all v1 endpoints via the registrars populated by the
// application entry point. The indirection avoids import cycles between core
// and handler packages.
func (s *Server) mountV1(r chi.Router) {
	for _, registrar := range s.V1RouteRegistrars {
		registrar(r)
	}
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

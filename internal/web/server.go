// Package web provides the diagnostic HTTP API used by upstream tooling to
// inspect export files before a full ingestion run: which tables the
// registry knows, and what types a sampled file's columns look like.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mkbdata/odeingest/internal/config"
	"github.com/mkbdata/odeingest/internal/ingest"
	"github.com/mkbdata/odeingest/internal/schema"
)

// Server is the diagnostic API server.
type Server struct {
	reg    *schema.Registry
	reader *ingest.Reader
	dir    string
	router *chi.Mux
	server *http.Server
}

// NewServer creates a Server over the given registry and export directory.
func NewServer(reg *schema.Registry, reader *ingest.Reader, cfg *config.Config) *Server {
	s := &Server{
		reg:    reg,
		reader: reader,
		dir:    cfg.Ingest.Dir,
		router: chi.NewRouter(),
	}
	s.setupMiddleware(cfg.Inspect.RequestTimeout)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Inspect.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Inspect.ReadTimeout,
		WriteTimeout: cfg.Inspect.WriteTimeout,
		IdleTimeout:  cfg.Inspect.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware(requestTimeout time.Duration) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(requestTimeout))
	s.router.Use(requestLogger)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/tables", s.handleTables)
		r.Get("/tables/{name}", s.handleTable)
		r.Get("/analyze", s.handleAnalyze)
	})
}

// Start runs the server until Shutdown is called.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

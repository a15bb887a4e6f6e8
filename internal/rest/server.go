// Copyright (c) 2026 PillsMe
//
// This file is part of pillsme-auth.
//
// pillsme-auth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@pillsme.app for commercial licensing options.

package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pillsme/pillsme-auth/pkg/metrics"
	"github.com/pillsme/pillsme-auth/pkg/passkey"
	"github.com/pillsme/pillsme-auth/pkg/ratelimit"
	"github.com/pillsme/pillsme-auth/pkg/session"
)

// Server is the passkey authentication HTTP server.
type Server struct {
	server   *http.Server
	handlers *HandlerContext
	limiter  *ratelimit.Limiter
	origins  []string
	metrics  bool
	logger   *slog.Logger
}

// Config holds the REST server configuration.
type Config struct {
	// Listen is the address to bind to (default: ":8443").
	Listen string

	// Service is the passkey ceremony service (required).
	Service *passkey.Service

	// Sessions verifies session cookies (required).
	Sessions *session.Codec

	// SecureCookie marks issued cookies Secure.
	SecureCookie bool

	// Limiter throttles the registration endpoints (optional).
	Limiter *ratelimit.Limiter

	// Metrics exposes /metrics when true.
	Metrics bool

	// Logger receives request logs. Optional; defaults to slog.Default.
	Logger *slog.Logger

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("passkey service is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session codec is required")
	}

	if cfg.Listen == "" {
		cfg.Listen = ":8443"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := &Server{
		handlers: NewHandlerContext(cfg.Service, cfg.Sessions, cfg.SecureCookie, logger),
		limiter:  cfg.Limiter,
		origins:  cfg.Service.Config().RPOrigins,
		metrics:  cfg.Metrics,
		logger:   logger,
	}

	server.server = &http.Server{
		Addr:         cfg.Listen,
		Handler:      server.setupRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.LoggingMiddleware())
	if s.metrics {
		r.Use(metrics.HTTPMiddleware)
	}
	r.Use(s.CORSMiddleware())

	r.Get("/healthz", s.handlers.HealthHandler)
	r.Head("/healthz", s.handlers.HealthHandler)

	if s.metrics {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/passkey", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if s.limiter != nil {
					r.Use(ratelimit.Middleware(s.limiter))
				}
				r.Post("/register/start", s.handlers.RegisterStartHandler)
				r.Post("/register/finish", s.handlers.RegisterFinishHandler)
			})

			r.Post("/authenticate/start", s.handlers.AuthenticateStartHandler)
			r.Post("/authenticate/finish", s.handlers.AuthenticateFinishHandler)

			r.Post("/list", s.handlers.ListPasskeysHandler)
			r.Post("/delete", s.handlers.DeletePasskeyHandler)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Get("/me", s.handlers.MeHandler)
			r.Post("/logout", s.handlers.LogoutHandler)
			r.Post("/lookup-user", s.handlers.LookupUserHandler)
			r.Delete("/delete", s.handlers.DeleteAccountHandler)
		})
	})

	return r
}

// Handler returns the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the REST API server and blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

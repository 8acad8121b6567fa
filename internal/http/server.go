// Package http provides the HTTP server and API handlers for nexus.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/zerodaily/nexus/internal/http/middleware"
)

// ServerConfig holds listener and timeout settings for the API server.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// CORSOrigins restricts cross-origin callers; empty means allow all.
	CORSOrigins []string
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	return c
}

// Server wires the chi router, middleware chain and Huma API together.
type Server struct {
	cfg    ServerConfig
	router *chi.Mux
	api    huma.API
	logger *slog.Logger
}

// NewServer builds the router and API surface. Operations are registered by
// the caller through API() before ListenAndServe.
func NewServer(cfg ServerConfig, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	cfg = cfg.withDefaults()

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.NewLoggingMiddleware(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(corsMiddleware(cfg.CORSOrigins))
	router.Use(chimiddleware.Compress(5))

	humaCfg := huma.DefaultConfig("nexus API", version)
	humaCfg.Info.Description = "Daily content pipeline orchestration API"
	// The themed DocsHandler serves /docs; Huma's built-in page is disabled.
	humaCfg.DocsPath = ""

	return &Server{
		cfg:    cfg,
		router: router,
		api:    humachi.New(router, humaCfg),
		logger: logger,
	}
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return middleware.CORS()
	}
	cfg := middleware.DefaultCORSConfig()
	cfg.AllowedOrigins = origins
	return middleware.CORSWithConfig(cfg)
}

// API returns the Huma API for registering operations.
func (s *Server) API() huma.API { return s.api }

// Router returns the chi router for routes that bypass the API layer.
func (s *Server) Router() *chi.Mux { return s.router }

// ListenAndServe serves requests until ctx is cancelled, then drains active
// connections within the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", slog.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	drainCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(drainCtx)
}

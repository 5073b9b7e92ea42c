package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/podwatch/anomaly-engine/internal/config"
)

// Server wraps the HTTP server and its lifecycle helpers.
type Server struct {
	cfg        config.ServerConfig
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer constructs the router and binds all routes.
func NewServer(cfg config.ServerConfig, logger *slog.Logger, h *Handler) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)
	r.Get("/api/v1/detect", h.Detect)
	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:         cfg.Address,
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Start serves requests until Shutdown is invoked.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("address", s.cfg.Address))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests, falling back to an immediate close
// when the context expires.
func (s *Server) Shutdown(ctx context.Context) {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown", slog.Any("error", err))
		_ = s.httpServer.Close()
	}
}

// GracefulTimeout returns the configured graceful timeout duration.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}

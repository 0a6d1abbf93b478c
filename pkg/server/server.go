// Package server exposes the ingestion and brief triggers over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/thefalc/podcast-research-agent/pkg/config"
	"github.com/thefalc/podcast-research-agent/pkg/logging"
	"github.com/thefalc/podcast-research-agent/pkg/worker"
)

// Queue accepts background jobs.
type Queue interface {
	SubmitIngest(bundleID string, urls []string) error
	SubmitBrief(bundleID string) error
	Stats() worker.Stats
}

// Server is the HTTP trigger surface.
type Server struct {
	queue  Queue
	config config.ServerConfig
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server that hands requests to queue.
func NewServer(queue Queue, cfg config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		queue:  queue,
		config: cfg,
		logger: logging.OrNop(logger).Named("http"),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Post("/process-urls", s.handleProcessURLs)
	r.Post("/generate-research-brief", s.handleGenerateBrief)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	return r
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pbdl/pinterest-board-downloader/internal/api/handlers"
	"github.com/pbdl/pinterest-board-downloader/internal/api/middleware"
	"github.com/pbdl/pinterest-board-downloader/internal/config"
	"github.com/pbdl/pinterest-board-downloader/internal/metrics"
	"github.com/pbdl/pinterest-board-downloader/internal/scheduler"
	"github.com/sirupsen/logrus"
)

// Server exposes the watch-mode observability endpoints
type Server struct {
	server    *http.Server
	scheduler *scheduler.Scheduler
	logger    *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, sched *scheduler.Scheduler, m *metrics.Metrics, logger *logrus.Logger) *Server {
	s := &Server{
		scheduler: sched,
		logger:    logger,
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux, m)

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      middleware.Logging(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux, m *metrics.Metrics) {
	healthHandler := handlers.NewHealthHandler(s.logger)
	mux.HandleFunc("/health", healthHandler.ServeHTTP)

	statusHandler := handlers.NewStatusHandler(s.scheduler, s.logger)
	mux.HandleFunc("/status", statusHandler.ServeHTTP)

	mux.Handle("/metrics", m.Handler())
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("addr", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

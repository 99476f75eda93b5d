// Package api serves the status HTTP endpoints: health, readiness, the
// worker registry and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/ftserve/internal/logger"
	"github.com/marmos91/ftserve/pkg/api/handlers"
)

// Server provides the status HTTP server.
//
// Endpoints:
//   - GET /health: Liveness probe
//   - GET /health/ready: Readiness probe
//   - GET /api/v1/workers: Registered workers
//   - GET /metrics: Prometheus metrics (when a registry is given)
//
// The server supports graceful shutdown with configurable timeout.
type Server struct {
	server       *http.Server
	config       APIConfig
	shutdownOnce sync.Once

	listenerMu sync.RWMutex
	listener   net.Listener
	ready      chan struct{}
	readyOnce  sync.Once
}

// NewServer creates a new status HTTP server.
//
// The server is created in a stopped state. Call Start() to begin serving
// requests. reg may be nil, in which case /metrics is not served.
func NewServer(config APIConfig, status handlers.ServerStatus, reg *prometheus.Registry) *Server {
	config.applyDefaults()

	server := &http.Server{
		Addr:         net.JoinHostPort(config.BindAddress, strconv.Itoa(config.Port)),
		Handler:      NewRouter(status, reg),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{
		server: server,
		config: config,
		ready:  make(chan struct{}),
	}
}

// Start starts the HTTP server and blocks until the context is cancelled
// or an error occurs.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the server fails to start or shutdown encounters an error
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.readyOnce.Do(func() { close(s.ready) })
		return fmt.Errorf("API server failed: %w", err)
	}
	s.listenerMu.Lock()
	s.listener = ln
	s.listenerMu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", logger.KeyAddress, ln.Addr().String())

		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// The cancelled ctx would abort shutdown immediately.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown of the API server.
//
// Stop is safe to call multiple times and safe to call concurrently with Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", logger.Err(err))
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Addr blocks until the server is listening and returns its address, or ""
// when listening failed.
func (s *Server) Addr() string {
	<-s.ready

	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.config.Port
}

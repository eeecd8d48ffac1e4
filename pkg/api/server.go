// Package api serves the ShareGuard REST and WebSocket interface.
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

	"github.com/shareguard/shareguard/internal/logger"
	"github.com/shareguard/shareguard/pkg/config"
	"github.com/shareguard/shareguard/pkg/metrics"
)

// Server is the HTTP server wrapping the router.
type Server struct {
	server       *http.Server
	config       config.APIConfig
	shutdownOnce sync.Once
}

// NewServer builds the server. With auth enabled the JWT secret must be
// configured; with auth disabled jwtService is nil and routes are open.
func NewServer(cfg config.APIConfig, h *Handlers, m *metrics.Metrics) (*Server, error) {
	var jwtService *JWTService
	if cfg.AuthEnabled {
		svc, err := NewJWTService(cfg.JWTSecret, cfg.TokenTTL)
		if err != nil {
			return nil, fmt.Errorf("creating JWT service: %w", err)
		}
		jwtService = svc
	}

	router := NewRouter(h, jwtService, m, cfg.RequestTimeout)

	return &Server{
		server: &http.Server{
			Addr:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:     router,
			ReadTimeout: 30 * time.Second,
			// No WriteTimeout: WebSocket subscriptions outlive any sane
			// fixed value and the request timeout middleware bounds the
			// REST routes.
			IdleTimeout: 120 * time.Second,
		},
		config: cfg,
	}, nil
}

// Start serves until the context is cancelled, then shuts down
// gracefully within the given timeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
		return s.Shutdown(shutdownTimeout)
	}
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	var err error
	s.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		logger.Info("shutting down API server")
		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("API server shutdown: %w", shutdownErr)
		}
	})
	return err
}

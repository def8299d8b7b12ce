// Package adminapi exposes a small read-only HTTP surface for operating an
// iSCSI target: liveness, Prometheus metrics, and an active-session
// listing, guarded by a JWT bearer token.
package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coregate/iscsid/internal/logger"
)

// Server is the admin HTTP server. It is created stopped; call Start to
// begin serving.
type Server struct {
	server       *http.Server
	config       Config
	shutdownOnce sync.Once
}

// NewServer builds an admin Server from cfg. cfg.Target must be non-nil;
// cfg.Catalog and cfg.Registry may be nil: /targets then answers with an
// empty list, and /metrics serves prometheus.DefaultGatherer instead.
func NewServer(cfg Config) *Server {
	cfg.applyDefaults()

	var issuer *TokenIssuer
	if cfg.JWTSecret != "" {
		issuer = NewTokenIssuer([]byte(cfg.JWTSecret), "", cfg.TokenTTL)
	}

	router := NewRouter(cfg.Target, cfg.Catalog, cfg.Registry, issuer)

	return &Server{
		config: cfg,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start serves the admin API until ctx is cancelled, then gracefully
// shuts down and returns.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin api listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("adminapi: server failed: %w", err)
	}
}

// Stop gracefully shuts down the admin server. Safe to call multiple
// times and concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("adminapi: shutdown: %w", err)
		}
	})
	return shutdownErr
}

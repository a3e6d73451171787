package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const shutdownTimeout = 30 * time.Second

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts down
// gracefully and closes the tracker manager and the store.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tlsConfig, err := s.setupTLS()
	if err != nil {
		s.closeResources()
		return fmt.Errorf("failed to set up TLS: %w", err)
	}

	addr := net.JoinHostPort(s.cfg.Server.Host, s.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.closeResources()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.serve(ctx, ln, tlsConfig != nil, func(srv *http.Server) { srv.TLSConfig = tlsConfig })
}

func (s *Server) serve(ctx context.Context, ln net.Listener, useTLS bool, configure func(*http.Server)) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
	}
	if configure != nil {
		configure(httpServer)
	}

	s.logStartup(ln.Addr().String(), useTLS)

	serverErrors := make(chan error, 1)
	go func() {
		var err error
		if useTLS {
			err = httpServer.ServeTLS(ln, "", "")
		} else {
			err = httpServer.Serve(ln)
		}
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err, ok := <-serverErrors:
		s.closeResources()
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("Shutdown requested, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Trackers stop first so open event streams end and the drain can finish.
	if s.deps.Tracker != nil {
		s.deps.Tracker.Close()
	}
	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.LogError(err, "Graceful shutdown failed, forcing close")
		_ = httpServer.Close()
	}
	s.closeResources()
	s.logger.Info("Server shutdown completed")
	return err
}

// closeResources releases everything the server owns. Safe to call more than once.
func (s *Server) closeResources() {
	if s.deps.Tracker != nil {
		s.deps.Tracker.Close()
	}
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.certs != nil {
		if err := s.certs.Close(); err != nil {
			s.logger.LogError(err, "Failed to stop certificate watcher")
		}
	}
	if s.deps.Store != nil {
		if err := s.deps.Store.Close(); err != nil {
			s.logger.LogError(err, "Failed to close store")
		}
	}
}

func (s *Server) logStartup(addr string, useTLS bool) {
	scheme := "http"
	if useTLS {
		scheme = "https"
	}
	rl := s.cfg.Server.RateLimit
	s.logger.Info("Starting HTTP server",
		"address", fmt.Sprintf("%s://%s", scheme, addr),
		"api_keys", len(s.apiKeys),
		"max_request_size", s.cfg.Server.MaxRequestSize,
		"rate_limit", rl.Enabled,
		"rate_limit_per_min", rl.RequestsPerMin,
		"cors", s.cfg.Server.CORS.Enabled,
		"auto_apply", s.autoApplyEnabled())
	if len(s.apiKeys) == 0 {
		s.logger.Warn("API authentication is disabled; API endpoints are publicly accessible")
	}
}

// Package server assembles the HTTP surface of turnkeeper: the websocket
// protocol endpoint, game creation and health check, wrapped in the
// middleware chain (recovery, rate limit, logging, optional token auth).
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/iudanet/turnkeeper/internal/auth"
	"github.com/iudanet/turnkeeper/internal/server/engine"
	"github.com/iudanet/turnkeeper/internal/server/handlers"
	"github.com/iudanet/turnkeeper/internal/server/middleware"
	"github.com/iudanet/turnkeeper/internal/server/registry"
)

// Server — HTTP сервер с собранным middleware chain
type Server struct {
	logger     *slog.Logger
	cfg        *Config
	httpServer *http.Server
}

// New wires handlers and middleware into a ready-to-run server
func New(
	logger *slog.Logger,
	cfg *Config,
	reg *registry.Registry,
	eng *engine.Engine,
	version string,
) *Server {
	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(logger, version)
	gamesHandler := handlers.NewGamesHandler(logger, reg)
	wsHandler := handlers.NewWSHandler(logger, eng)

	mux.HandleFunc("/api/v1/health", healthHandler.Health)

	// Пустой секрет выключает проверку токенов (trusted network,
	// локальная разработка)
	protect := func(h http.Handler) http.Handler { return h }
	if cfg.AuthSecret != "" {
		protect = middleware.AuthMiddleware(logger, auth.Config{
			Secret:   []byte(cfg.AuthSecret),
			TokenTTL: cfg.TokenTTL,
		})
	}
	mux.Handle("/api/v1/games", protect(http.HandlerFunc(gamesHandler.Create)))
	mux.Handle("/api/v1/ws", protect(http.HandlerFunc(wsHandler.Serve)))

	// Логирование пропускает health (шум) и ws (обертка writer'а не
	// переживает hijack при upgrade)
	handler := middleware.LoggingWithSkip(logger, []string{"/api/v1/health", "/api/v1/ws"})(
		middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateWindow, logger)(
			middleware.RecoveryMiddleware(logger)(mux)))

	return &Server{
		logger: logger,
		cfg:    cfg,
		httpServer: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until the context is canceled, then shuts down gracefully.
// Request contexts derive from ctx, so cancellation also closes every live
// websocket connection (hijacked connections are invisible to Shutdown).
func (s *Server) Run(ctx context.Context) error {
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	errC := make(chan error, 1)
	go func() {
		errC <- s.httpServer.ListenAndServe()
	}()

	s.logger.Info("server listening", "addr", s.cfg.ListenAddr)

	select {
	case err := <-errC:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "timeout", s.cfg.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}

	<-errC // ListenAndServe вернул ErrServerClosed
	return nil
}

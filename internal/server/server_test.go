package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/turnkeeper/internal/ruleset"
	"github.com/iudanet/turnkeeper/internal/server/engine"
	"github.com/iudanet/turnkeeper/internal/server/handlers"
	"github.com/iudanet/turnkeeper/internal/server/registry"
	"github.com/iudanet/turnkeeper/internal/server/storage/sqlite"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "turnkeeper.db", cfg.DatabasePath)
	assert.Equal(t, 1024, cfg.MaxLogRequest)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Empty(t, cfg.AuthSecret)
}

func TestConfig_Level(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{LogLevel: tt.name}
			assert.Equal(t, tt.level, cfg.Level())
		})
	}
}

func setupServer(t *testing.T, cfg *Config) *Server {
	t.Helper()

	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(logger, store, store)
	eng := engine.New(logger, reg, store, ruleset.NewService(store), engine.Config{
		MaxLogRequest: cfg.MaxLogRequest,
		QueueSize:     cfg.QueueSize,
	})

	return New(logger, cfg, reg, eng, "test")
}

func TestServer_Routes(t *testing.T) {
	cfg := &Config{ListenAddr: ":0", RateLimit: 100, RateWindow: time.Minute}
	s := setupServer(t, cfg)

	// Health доступен без токена
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health handlers.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)

	// Создание игры
	rec = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/games", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	var game handlers.CreateGameResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&game))
	assert.Regexp(t, `^[0-9a-f]{64}$`, game.GameID)
}

func TestServer_AuthRequired(t *testing.T) {
	cfg := &Config{
		ListenAddr: ":0",
		AuthSecret: "test-secret",
		TokenTTL:   time.Hour,
		RateLimit:  100,
		RateWindow: time.Minute,
	}
	s := setupServer(t, cfg)

	// Защищенный эндпоинт без токена — 401
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/games", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health остается открытым
	rec = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

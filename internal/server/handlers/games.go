package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// GameAllocator определяет интерфейс выделения игровых идентификаторов
type GameAllocator interface {
	// NewGameID allocates a fresh, never-used game id and creates its log
	NewGameID(ctx context.Context) (string, error)
}

// GamesHandler обрабатывает создание игр
type GamesHandler struct {
	logger    *slog.Logger
	allocator GameAllocator
}

// NewGamesHandler creates a new games handler
func NewGamesHandler(logger *slog.Logger, allocator GameAllocator) *GamesHandler {
	return &GamesHandler{
		logger:    logger,
		allocator: allocator,
	}
}

// CreateGameResponse представляет ответ на создание игры
type CreateGameResponse struct {
	GameID string `json:"game_id"`
}

// Create обрабатывает POST /api/v1/games: выделяет новый game id.
// Идентификатор существует с этого момента навсегда — id игр не
// переиспользуются
func (h *GamesHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	gameID, err := h.allocator.NewGameID(r.Context())
	if err != nil {
		h.logger.Error("failed to allocate game id", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("game created", "game_id", gameID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(CreateGameResponse{GameID: gameID}); err != nil {
		h.logger.Error("failed to encode game response", slog.Any("error", err))
	}
}

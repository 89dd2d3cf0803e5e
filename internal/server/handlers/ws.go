package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/iudanet/turnkeeper/internal/server/engine"
)

// WSHandler upgrades connections and hands them to the protocol engine:
// one handler goroutine per connection, blocked until the peer leaves.
type WSHandler struct {
	logger   *slog.Logger
	engine   *engine.Engine
	upgrader websocket.Upgrader
}

// NewWSHandler creates the websocket entry point
func NewWSHandler(logger *slog.Logger, eng *engine.Engine) *WSHandler {
	return &WSHandler{
		logger: logger,
		engine: eng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Клиенты — CLI-процессы, не браузеры: origin не проверяется
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve обрабатывает GET /api/v1/ws
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	// client_id из токена; пустой, когда проверка токенов выключена
	authClientID, _ := ClientIDFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			"remote_addr", r.RemoteAddr,
			"error", err)
		return
	}

	h.engine.HandleConn(r.Context(), engine.NewWebsocketTransport(conn), authClientID)
}

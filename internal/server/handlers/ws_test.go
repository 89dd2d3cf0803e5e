package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/turnkeeper/pkg/api"

	"github.com/iudanet/turnkeeper/internal/ruleset"
	"github.com/iudanet/turnkeeper/internal/server/engine"
	"github.com/iudanet/turnkeeper/internal/server/registry"
	"github.com/iudanet/turnkeeper/internal/server/storage/sqlite"
)

// Интеграционный тест: handshake и append через настоящий websocket
func TestWS_HandshakeAndEvent(t *testing.T) {
	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	logger := discardLogger()
	reg := registry.New(logger, store, store)
	eng := engine.New(logger, reg, store, ruleset.NewService(store), engine.Config{})

	srv := httptest.NewServer(http.HandlerFunc(NewWSHandler(logger, eng).Serve))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// Handshake
	data, err := api.Encode(api.Hello{ClientID: "alice", GameID: "beef01"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := api.Decode(reply)
	require.NoError(t, err)
	att, ok := msg.(api.Attached)
	require.True(t, ok, "expected attached, got %T", msg)
	assert.Equal(t, "beef01", att.GameID)

	// Append события возвращается окном лога
	data, err = api.Encode(api.Event{Payload: json.RawMessage(`{"move":"e4"}`)})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	_, reply, err = conn.ReadMessage()
	require.NoError(t, err)
	msg, err = api.Decode(reply)
	require.NoError(t, err)
	window, ok := msg.(api.Log)
	require.True(t, ok, "expected log, got %T", msg)
	require.Len(t, window.Entries, 1)
	assert.Equal(t, int64(1), window.Entries[0].Timestamp)
}

// Package handlers contains the HTTP surface of the server: health check,
// game creation and the websocket entry point of the protocol.
package handlers

import "context"

// contextKey тип для ключей контекста
type contextKey string

// ClientIDKey ключ для client_id, доказанного connection-токеном
const ClientIDKey contextKey = "client_id"

// ClientIDFromContext извлекает client_id из контекста запроса.
// Отсутствие значения означает, что проверка токенов выключена
func ClientIDFromContext(ctx context.Context) (string, bool) {
	clientID, ok := ctx.Value(ClientIDKey).(string)
	return clientID, ok
}

package engine

import "github.com/gorilla/websocket"

// wsTransport адаптирует websocket-соединение под Transport
type wsTransport struct {
	conn *websocket.Conn
}

// NewWebsocketTransport wraps an upgraded websocket connection as a Transport
func NewWebsocketTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

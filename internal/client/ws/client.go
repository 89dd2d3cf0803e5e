// Package ws is the typed websocket client of the protocol: dial, handshake
// with ruleset negotiation, encode/decode of protocol messages.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/iudanet/turnkeeper/pkg/api"

	"github.com/iudanet/turnkeeper/internal/models"
)

// RulesetSource отдает локально известные версии ruleset; during handshake
// сервер может запросить документ, который клиент заявил в hello
type RulesetSource interface {
	LoadVersion(ctx context.Context, hash string) (*models.RulesetVersion, error)
}

// Client — одно websocket-соединение с сервером
type Client struct {
	logger *slog.Logger
	conn   *websocket.Conn
}

// Dial connects to the server's websocket endpoint. serverURL accepts both
// http(s) and ws(s) schemes; a non-empty token is sent as a bearer header.
func Dial(ctx context.Context, logger *slog.Logger, serverURL, token string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/api/v1/ws"

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to dial %q (status %d): %w", u.String(), resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %q: %w", u.String(), err)
	}

	return &Client{logger: logger, conn: conn}, nil
}

// Send encodes and writes one protocol message
func (c *Client) Send(msg any) error {
	data, err := api.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Receive blocks until the next protocol message arrives
func (c *Client) Receive() (any, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	msg, err := api.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return msg, nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Handshake sends hello and drives the exchange until the server attaches
// the connection. When the server asks for the ruleset document the client
// claimed, it is served from rulesets.
func (c *Client) Handshake(ctx context.Context, hello api.Hello, rulesets RulesetSource) (*api.Attached, error) {
	if err := c.Send(hello); err != nil {
		return nil, fmt.Errorf("failed to send hello: %w", err)
	}

	for {
		msg, err := c.Receive()
		if err != nil {
			return nil, fmt.Errorf("handshake failed: %w", err)
		}

		switch m := msg.(type) {
		case api.Attached:
			c.logger.Debug("attached",
				"session_id", m.SessionID,
				"game_id", m.GameID,
				"ruleset_hash", m.RulesetHash)
			return &m, nil

		case api.RequestRuleset:
			// Сервер не знает заявленную версию — отдаем документ
			version, err := rulesets.LoadVersion(ctx, m.Hash)
			if err != nil {
				return nil, fmt.Errorf("server requested ruleset %q not in local cache: %w", m.Hash, err)
			}
			if err := c.Send(api.Ruleset{Hash: version.Hash, Document: version.Document}); err != nil {
				return nil, fmt.Errorf("failed to send ruleset: %w", err)
			}

		case api.Error:
			// hash_mismatch не фатален: attached придет следом,
			// подключение продолжится без заявленной версии
			if m.Code == api.ErrorCodeHashMismatch {
				c.logger.Warn("ruleset rejected during handshake", "message", m.Message)
				continue
			}
			return nil, fmt.Errorf("handshake rejected: %s: %s", m.Code, m.Message)

		default:
			return nil, fmt.Errorf("unexpected message %T during handshake", msg)
		}
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/iudanet/turnkeeper/pkg/api"

	"github.com/iudanet/turnkeeper/internal/server/registry"
	"github.com/iudanet/turnkeeper/internal/server/storage"
	"github.com/iudanet/turnkeeper/internal/validation"
)

// Transport abstracts the wire below the protocol: the production
// implementation wraps a websocket connection, tests substitute channels.
type Transport interface {
	// ReadMessage blocks until the next complete message arrives
	ReadMessage() ([]byte, error)

	// WriteMessage sends one complete message
	WriteMessage(data []byte) error

	// Close tears the transport down, unblocking pending reads
	Close() error
}

// connState — состояние handshake-автомата соединения
type connState int

const (
	// stateHandshaking соединение установлено, hello еще не получен
	stateHandshaking connState = iota
	// stateAwaitingRuleset сервер запросил у клиента неизвестный ruleset
	// и ждет документ до завершения handshake
	stateAwaitingRuleset
	// stateAttached клиент привязан к сессии, обычный режим
	stateAttached
	// stateClosed соединение закрывается
	stateClosed
)

// Conn is the per-connection protocol state. All state transitions happen in
// the read goroutine; the write goroutine only drains the outbound queue.
// Conn implements registry.Subscriber so session broadcasts land in the same
// queue as direct replies, preserving per-connection ordering.
type Conn struct {
	engine *Engine

	tr Transport

	clientID string
	gameID   string
	sess     *registry.Session
	state    connState

	// pendingHash — хеш, запрошенный у клиента в stateAwaitingRuleset
	pendingHash string

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(e *Engine, tr Transport) *Conn {
	return &Conn{
		engine: e,
		tr:     tr,
		out:    make(chan []byte, e.cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// ClientID returns the client id bound at handshake
func (c *Conn) ClientID() string { return c.clientID }

// Enqueue queues an encoded message for delivery. Never blocks: a full queue
// reports false so the session can drop this subscriber instead of stalling.
func (c *Conn) Enqueue(data []byte) bool {
	select {
	case <-c.done:
		// Соединение закрывается, доставка уже не имеет смысла
		return true
	case c.out <- data:
		return true
	default:
		return false
	}
}

// Kick closes the connection; the read loop observes the closed transport
// and runs the usual detach path.
func (c *Conn) Kick(reason string) {
	c.engine.logger.Warn("kicking connection",
		"client_id", c.clientID,
		"reason", reason)
	c.close()
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.tr.Close()
	})
}

// writeLoop — единственная горутина, пишущая в транспорт
func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.out:
			if err := c.tr.WriteMessage(data); err != nil {
				c.close()
				return
			}
		}
	}
}

// readLoop reads and dispatches messages until the transport fails.
// A malformed frame earns the sender an error message, not a disconnect:
// protocol errors are contained to the connection and never fatal.
func (c *Conn) readLoop(ctx context.Context, authClientID string) {
	for {
		data, err := c.tr.ReadMessage()
		if err != nil {
			c.engine.logger.Debug("connection closed",
				"client_id", c.clientID,
				"error", err)
			return
		}

		msg, err := api.Decode(data)
		if err != nil {
			c.sendError(api.ErrorCodeProtocol, fmt.Sprintf("malformed message: %v", err))
			continue
		}

		c.handle(ctx, msg, authClientID)

		if c.state == stateClosed {
			return
		}
	}
}

// handle маршрутизирует сообщение по текущему состоянию автомата
func (c *Conn) handle(ctx context.Context, msg any, authClientID string) {
	switch c.state {
	case stateHandshaking:
		hello, ok := msg.(api.Hello)
		if !ok {
			c.sendError(api.ErrorCodeProtocol, "expected hello before any other message")
			return
		}
		c.handleHello(ctx, hello, authClientID)

	case stateAwaitingRuleset:
		rs, ok := msg.(api.Ruleset)
		if !ok {
			c.sendError(api.ErrorCodeProtocol, "ruleset negotiation pending")
			return
		}
		c.handleNegotiatedRuleset(ctx, rs)

	case stateAttached:
		c.dispatch(ctx, msg)

	case stateClosed:
	}
}

// handleHello validates the handshake and either attaches the client right
// away or, when the client presents a ruleset hash the server has never
// seen, requests the document first and parks the connection until it
// arrives.
func (c *Conn) handleHello(ctx context.Context, hello api.Hello, authClientID string) {
	if err := validation.ValidateClientID(hello.ClientID); err != nil {
		c.sendError(api.ErrorCodeProtocol, err.Error())
		return
	}
	if err := validation.ValidateGameID(hello.GameID); err != nil {
		c.sendError(api.ErrorCodeProtocol, err.Error())
		return
	}
	if err := validation.ValidateRulesetHash(hello.RulesetHash); err != nil {
		c.sendError(api.ErrorCodeProtocol, err.Error())
		return
	}

	// Токен соединения фиксирует client_id: handshake не может назваться
	// чужим именем
	if authClientID != "" && authClientID != hello.ClientID {
		c.sendError(api.ErrorCodeProtocol, "client id does not match connection token")
		c.state = stateClosed
		return
	}

	c.clientID = hello.ClientID
	c.gameID = hello.GameID

	if hello.RulesetHash != "" {
		known, err := c.engine.rulesets.Exists(ctx, hello.RulesetHash)
		if err != nil {
			c.sendError(api.ErrorCodeInternal, "failed to check ruleset version")
			c.state = stateClosed
			return
		}
		if !known {
			// Неизвестная версия: запрашиваем документ, решение о
			// конфликте откладывается до его получения
			c.pendingHash = hello.RulesetHash
			c.state = stateAwaitingRuleset
			c.send(api.RequestRuleset{Hash: hello.RulesetHash})
			return
		}
	}

	c.attach(ctx, hello.RulesetHash)
}

// handleNegotiatedRuleset completes a handshake that was parked waiting for
// the client's ruleset document.
func (c *Conn) handleNegotiatedRuleset(ctx context.Context, rs api.Ruleset) {
	c.pendingHash = ""

	hash, err := c.engine.rulesets.Save(ctx, rs.Hash, rs.Document)
	if err != nil {
		if errors.Is(err, storage.ErrHashMismatch) {
			// Заявленный хеш не подтвердился: документ отвергнут, клиент
			// подключается без собственной версии
			c.sendError(api.ErrorCodeHashMismatch, "document does not match claimed hash")
			c.attach(ctx, "")
			return
		}
		c.sendError(api.ErrorCodeInternal, "failed to save ruleset")
		c.state = stateClosed
		return
	}

	c.attach(ctx, hash)
}

// attach binds the connection to its game's session, resolves the presented
// ruleset version against the session's authoritative one and acknowledges
// the handshake. Any catch-up push for this client goes out after attached,
// so the client always learns its session id first.
func (c *Conn) attach(ctx context.Context, presentedHash string) {
	sess, err := c.engine.registry.Attach(ctx, c.clientID, c.gameID, presentedHash, c)
	if err != nil {
		c.engine.logger.Error("failed to attach client",
			"client_id", c.clientID,
			"game_id", c.gameID,
			"error", err)
		c.sendError(api.ErrorCodeInternal, "failed to attach to session")
		c.state = stateClosed
		return
	}

	c.sess = sess
	c.state = stateAttached

	push := c.resolveRuleset(ctx, presentedHash)

	c.send(api.Attached{
		SessionID:   sess.ID(),
		GameID:      c.gameID,
		RulesetHash: sess.RulesetHash(),
	})
	if push != nil {
		c.send(push)
	}
}

// send encodes msg and queues it on this connection
func (c *Conn) send(msg any) {
	data, err := api.Encode(msg)
	if err != nil {
		c.engine.logger.Error("failed to encode message",
			"client_id", c.clientID,
			"error", err)
		return
	}
	if !c.Enqueue(data) {
		c.Kick("outbound queue overflow")
	}
}

func (c *Conn) sendError(code api.ErrorCode, message string) {
	c.engine.logger.Warn("protocol error",
		"client_id", c.clientID,
		"code", code,
		"message", message)
	c.send(api.Error{Code: code, Message: message})
}

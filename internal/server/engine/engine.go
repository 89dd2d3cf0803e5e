// Package engine implements the server side of the reconciliation protocol:
// one handler per connection, a handshake state machine and the dispatch of
// attached-state messages (log requests, event appends, ruleset exchange).
package engine

import (
	"context"
	"log/slog"

	"github.com/iudanet/turnkeeper/internal/ruleset"
	"github.com/iudanet/turnkeeper/internal/server/registry"
	"github.com/iudanet/turnkeeper/internal/server/storage"
)

const (
	defaultMaxLogRequest = 1024
	defaultQueueSize     = 64
)

// Config задает лимиты обработки одного соединения
type Config struct {
	// MaxLogRequest — верхняя граница n в request-log; запрос шире
	// отвечается полным логом
	MaxLogRequest int
	// QueueSize — емкость исходящей очереди соединения; при переполнении
	// подписчик отключается, а не блокирует сессию
	QueueSize int
}

// Engine drives the protocol for every accepted connection. It owns no
// per-connection state itself: each HandleConn call builds a Conn and runs
// it to completion.
type Engine struct {
	logger   *slog.Logger
	registry *registry.Registry
	eventLog storage.EventLogStorage
	rulesets *ruleset.Service
	cfg      Config
}

// New creates a protocol engine over the given registry and stores
func New(
	logger *slog.Logger,
	reg *registry.Registry,
	eventLog storage.EventLogStorage,
	rulesets *ruleset.Service,
	cfg Config,
) *Engine {
	if cfg.MaxLogRequest <= 0 {
		cfg.MaxLogRequest = defaultMaxLogRequest
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Engine{
		logger:   logger,
		registry: reg,
		eventLog: eventLog,
		rulesets: rulesets,
		cfg:      cfg,
	}
}

// HandleConn runs the protocol over tr until the peer disconnects or the
// context is canceled. authClientID, when non-empty, is the client identity
// proven by the connection token; the handshake must present the same id.
// Blocks for the lifetime of the connection.
func (e *Engine) HandleConn(ctx context.Context, tr Transport, authClientID string) {
	c := newConn(e, tr)
	defer c.close()

	// Отмена контекста (shutdown сервера) закрывает транспорт и
	// разблокирует читающий цикл
	stop := context.AfterFunc(ctx, c.close)
	defer stop()

	go c.writeLoop()
	c.readLoop(ctx, authClientID)

	if c.state == stateAttached {
		e.registry.Detach(ctx, c.gameID, c.clientID)
	}
}

// Package client ties the pieces of the game client together: the websocket
// connection, the local BoltDB replica and the reconciliation service.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/iudanet/turnkeeper/pkg/api"

	"github.com/iudanet/turnkeeper/internal/client/storage"
	clientsync "github.com/iudanet/turnkeeper/internal/client/sync"
	"github.com/iudanet/turnkeeper/internal/client/ws"
	"github.com/iudanet/turnkeeper/internal/models"
	"github.com/iudanet/turnkeeper/internal/ruleset"
)

// Store объединяет обе клиентские подсистемы хранения
type Store interface {
	storage.LogStorage
	storage.RulesetStorage
}

// Config — параметры одного подключения
type Config struct {
	ServerURL string
	ClientID  string
	GameID    string
	Token     string
}

// Session is one attached connection to a game: it keeps the local replica
// converged with the server log and the ruleset cache in step with the
// session's authoritative version.
type Session struct {
	logger   *slog.Logger
	cfg      Config
	store    Store
	sync     *clientsync.Service
	conn     *ws.Client
	attached *api.Attached
	dmp      *diffmatchpatch.DiffMatchPatch
}

// NewSession creates a session over the local store; Connect establishes it
func NewSession(logger *slog.Logger, cfg Config, store Store) *Session {
	return &Session{
		logger: logger,
		cfg:    cfg,
		store:  store,
		sync:   clientsync.NewService(logger, store, cfg.GameID),
		dmp:    diffmatchpatch.New(),
	}
}

// Connect dials the server, completes the handshake (presenting the locally
// active ruleset version) and runs the initial log reconciliation, so the
// replica is converged before the first broadcast arrives.
func (s *Session) Connect(ctx context.Context) error {
	activeHash, err := s.store.ActiveHash(ctx, s.cfg.GameID)
	if err != nil {
		return fmt.Errorf("failed to read active ruleset: %w", err)
	}

	conn, err := ws.Dial(ctx, s.logger, s.cfg.ServerURL, s.cfg.Token)
	if err != nil {
		return err
	}

	attached, err := conn.Handshake(ctx, api.Hello{
		ClientID:    s.cfg.ClientID,
		GameID:      s.cfg.GameID,
		RulesetHash: activeHash,
	}, s.store)
	if err != nil {
		_ = conn.Close()
		return err
	}

	s.conn = conn
	s.attached = attached

	// Начальная сверка реплики с серверным логом
	if _, err := s.sync.Reconcile(ctx, connRequester{s}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("initial reconciliation failed: %w", err)
	}

	return nil
}

// Attached returns the handshake acknowledgement, nil before Connect
func (s *Session) Attached() *api.Attached {
	return s.attached
}

// Close closes the connection
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// SendEvent submits an opaque event for appending to the game's log.
// The entry comes back in the broadcast window; nothing is applied locally
// until then.
func (s *Session) SendEvent(payload json.RawMessage) error {
	return s.conn.Send(api.Event{Payload: payload})
}

// Run is the receive loop: broadcast windows keep the replica converged,
// ruleset pushes keep the cache and the active version current. Returns nil
// when the connection closes. onWindow, when non-nil, is called after every
// applied window.
func (s *Session) Run(ctx context.Context, onWindow func([]api.LogEntry)) error {
	for {
		msg, err := s.conn.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Debug("connection closed", "error", err)
			return nil
		}

		switch m := msg.(type) {
		case api.Log:
			if err := s.handleWindow(ctx, m); err != nil {
				return err
			}
			if onWindow != nil {
				onWindow(m.Entries)
			}

		case api.Ruleset:
			s.handleRulesetPush(ctx, m)

		case api.RulesetPatch:
			s.handleRulesetPatch(ctx, m)

		case api.RequestRuleset:
			s.serveRuleset(ctx, m)

		case api.Error:
			s.logger.Warn("server reported error", "code", m.Code, "message", m.Message)

		default:
			s.logger.Warn("unexpected message", "type", fmt.Sprintf("%T", msg))
		}
	}
}

// handleWindow — fast path, затем reconciliation при разрыве или дивергенции
func (s *Session) handleWindow(ctx context.Context, m api.Log) error {
	ok, err := s.sync.ApplyWindow(ctx, m.Entries)
	if err != nil {
		return fmt.Errorf("failed to apply window: %w", err)
	}
	if ok {
		return nil
	}

	result, err := s.sync.Reconcile(ctx, connRequester{s})
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	s.logger.Info("log repaired",
		"game_id", s.cfg.GameID,
		"applied", result.Applied,
		"truncated", result.Truncated,
		"replaced", result.Replaced)
	return nil
}

// handleRulesetPush сохраняет присланную версию и делает ее активной
func (s *Session) handleRulesetPush(ctx context.Context, m api.Ruleset) {
	computed := ruleset.Hash(m.Document)
	if computed != m.Hash {
		s.logger.Warn("ruleset push failed hash check",
			"claimed", m.Hash,
			"computed", computed)
		return
	}

	if err := s.store.SaveVersion(ctx, &models.RulesetVersion{
		Hash:      m.Hash,
		Document:  m.Document,
		CreatedAt: time.Now(),
	}); err != nil {
		s.logger.Error("failed to cache ruleset", "hash", m.Hash, "error", err)
		return
	}
	if err := s.store.SetActiveHash(ctx, s.cfg.GameID, m.Hash); err != nil {
		s.logger.Error("failed to activate ruleset", "hash", m.Hash, "error", err)
		return
	}

	s.logger.Info("ruleset updated", "game_id", s.cfg.GameID, "hash", m.Hash)
}

// handleRulesetPatch applies a diff-derived update to the cached base
// version. When the base is missing or the result does not hash to the
// claimed version, the full document is requested instead; the push arrives
// later as a regular Ruleset message.
func (s *Session) handleRulesetPatch(ctx context.Context, m api.RulesetPatch) {
	base, err := s.store.LoadVersion(ctx, m.OldHash)
	if err != nil {
		if !errors.Is(err, storage.ErrRulesetNotFound) {
			s.logger.Error("failed to load patch base", "hash", m.OldHash, "error", err)
			return
		}
		s.requestFullRuleset(m.NewHash)
		return
	}

	patches, err := s.dmp.PatchFromText(m.Patch)
	if err != nil {
		s.logger.Warn("malformed ruleset patch", "error", err)
		s.requestFullRuleset(m.NewHash)
		return
	}

	result, applied := s.dmp.PatchApply(patches, string(base.Document))
	for _, ok := range applied {
		if !ok {
			s.requestFullRuleset(m.NewHash)
			return
		}
	}

	document := []byte(result)
	if ruleset.Hash(document) != m.NewHash {
		// Патч применился, но результат не подтверждает заявленный хеш
		s.requestFullRuleset(m.NewHash)
		return
	}

	s.handleRulesetPush(ctx, api.Ruleset{Hash: m.NewHash, Document: document})
}

func (s *Session) requestFullRuleset(hash string) {
	if err := s.conn.Send(api.RequestRuleset{Hash: hash}); err != nil {
		s.logger.Error("failed to request ruleset", "hash", hash, "error", err)
	}
}

// serveRuleset отвечает на запрос документа из локального кеша
func (s *Session) serveRuleset(ctx context.Context, m api.RequestRuleset) {
	version, err := s.store.LoadVersion(ctx, m.Hash)
	if err != nil {
		if err := s.conn.Send(api.Error{
			Code:    api.ErrorCodeNotFound,
			Message: fmt.Sprintf("no ruleset version %q", m.Hash),
		}); err != nil {
			s.logger.Error("failed to send error", "error", err)
		}
		return
	}

	if err := s.conn.Send(api.Ruleset{Hash: version.Hash, Document: version.Document}); err != nil {
		s.logger.Error("failed to send ruleset", "error", err)
	}
}

// connRequester makes the live connection usable by the reconciliation
// loop: send a request, read until its log reply, dispatch everything else
// on the side.
type connRequester struct {
	s *Session
}

func (r connRequester) RequestLog(ctx context.Context, n int) ([]api.LogEntry, error) {
	if err := r.s.conn.Send(api.RequestLog{GameID: r.s.cfg.GameID, N: n}); err != nil {
		return nil, fmt.Errorf("failed to send log request: %w", err)
	}

	for {
		msg, err := r.s.conn.Receive()
		if err != nil {
			return nil, err
		}

		switch m := msg.(type) {
		case api.Log:
			return m.Entries, nil
		case api.Error:
			return nil, fmt.Errorf("log request rejected: %s: %s", m.Code, m.Message)
		case api.Ruleset:
			r.s.handleRulesetPush(ctx, m)
		case api.RulesetPatch:
			r.s.handleRulesetPatch(ctx, m)
		case api.RequestRuleset:
			r.s.serveRuleset(ctx, m)
		default:
			r.s.logger.Warn("unexpected message during reconciliation",
				"type", fmt.Sprintf("%T", msg))
		}
	}
}

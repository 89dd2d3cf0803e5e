// Package registry owns Session and ClientRecord lifetimes: one session per
// game, created on first handshake, destroyed only by explicit close.
// Session ids are unique among active sessions only and become reusable
// after close; game ids are checked against the set of persisted game logs
// and never reused.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/turnkeeper/internal/ident"
	"github.com/iudanet/turnkeeper/internal/models"
	"github.com/iudanet/turnkeeper/internal/server/storage"
)

// Registry is the process-wide session registry shared by all connection
// handlers. Client records are persisted through RegistryStorage; live
// subscribers are in-memory only.
type Registry struct {
	logger   *slog.Logger
	store    storage.RegistryStorage
	eventLog storage.EventLogStorage

	// mu защищает обе map и аллокацию session id: existence check
	// генератора согласован с конкурентной аллокацией
	mu     sync.Mutex
	byGame map[string]*Session
	active map[string]*Session
}

// New creates a new session registry
func New(logger *slog.Logger, store storage.RegistryStorage, eventLog storage.EventLogStorage) *Registry {
	return &Registry{
		logger:   logger,
		store:    store,
		eventLog: eventLog,
		byGame:   make(map[string]*Session),
		active:   make(map[string]*Session),
	}
}

// Attach binds a client connection to the session of gameID, creating the
// session (with a freshly generated id) when none exists. The client record
// is persisted with the ruleset hash the client presented; the hash is
// updated later when the client acknowledges a newer version.
func (r *Registry) Attach(ctx context.Context, clientID, gameID, rulesetHash string, sub Subscriber) (*Session, error) {
	r.mu.Lock()

	sess, ok := r.byGame[gameID]
	if !ok {
		sessionID, err := ident.Generate(func(id string) (bool, error) {
			_, taken := r.active[id]
			return taken, nil
		})
		if err != nil {
			r.mu.Unlock()
			return nil, fmt.Errorf("failed to allocate session id: %w", err)
		}

		sess = newSession(sessionID, gameID)
		r.byGame[gameID] = sess
		r.active[sessionID] = sess

		r.logger.Info("session created",
			"session_id", sessionID,
			"game_id", gameID)
	}
	r.mu.Unlock()

	sess.addSubscriber(sub)

	record := &models.ClientRecord{
		ClientID:    clientID,
		SessionID:   sess.ID(),
		GameID:      gameID,
		RulesetHash: rulesetHash,
		ConnectedAt: time.Now(),
	}
	if err := r.store.PutClientRecord(ctx, record); err != nil {
		sess.removeSubscriber(clientID)
		return nil, fmt.Errorf("failed to persist client record: %w", err)
	}

	r.logger.Info("client attached",
		"client_id", clientID,
		"session_id", sess.ID(),
		"game_id", gameID)

	return sess, nil
}

// Detach removes one client from its session: subscriber dropped, record
// deleted. Idempotent. The session itself stays — it is still the binding
// for the game until explicitly closed.
func (r *Registry) Detach(ctx context.Context, gameID, clientID string) {
	r.mu.Lock()
	sess, ok := r.byGame[gameID]
	r.mu.Unlock()

	if !ok {
		return
	}

	if sess.removeSubscriber(clientID) {
		r.logger.Info("client detached",
			"client_id", clientID,
			"session_id", sess.ID(),
			"game_id", gameID)
	}

	if err := r.store.DeleteClientRecord(ctx, sess.ID(), clientID); err != nil {
		r.logger.Error("failed to delete client record",
			"client_id", clientID,
			"session_id", sess.ID(),
			"error", err)
	}
}

// CloseSession tears a session down: every client record is deleted and the
// session id leaves the active set (free for reuse by the id generator).
// The game's log and the ruleset store are untouched.
func (r *Registry) CloseSession(ctx context.Context, gameID string) error {
	r.mu.Lock()
	sess, ok := r.byGame[gameID]
	if ok {
		delete(r.byGame, gameID)
		delete(r.active, sess.ID())
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("no session for game %q", gameID)
	}

	if err := r.store.DeleteSessionRecords(ctx, sess.ID()); err != nil {
		return fmt.Errorf("failed to delete session records: %w", err)
	}

	r.logger.Info("session closed",
		"session_id", sess.ID(),
		"game_id", gameID)

	return nil
}

// Session returns the live session bound to gameID, if any
func (r *Registry) Session(gameID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.byGame[gameID]
	return sess, ok
}

// UpdateClientRuleset records that a client acknowledged a ruleset version
func (r *Registry) UpdateClientRuleset(ctx context.Context, sess *Session, clientID, rulesetHash string) error {
	record := &models.ClientRecord{
		ClientID:    clientID,
		SessionID:   sess.ID(),
		GameID:      sess.GameID(),
		RulesetHash: rulesetHash,
		ConnectedAt: time.Now(),
	}
	if err := r.store.PutClientRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to update client record: %w", err)
	}
	return nil
}

// NewGameID allocates a fresh game id, existence-checked against the set of
// persisted game logs, and creates the game row so the id can never be
// handed out twice.
func (r *Registry) NewGameID(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	gameID, err := ident.Generate(func(id string) (bool, error) {
		return r.eventLog.GameExists(ctx, id)
	})
	if err != nil {
		return "", fmt.Errorf("failed to allocate game id: %w", err)
	}

	if err := r.eventLog.CreateGame(ctx, gameID); err != nil {
		return "", fmt.Errorf("failed to create game: %w", err)
	}

	return gameID, nil
}

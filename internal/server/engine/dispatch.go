package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/turnkeeper/pkg/api"

	"github.com/iudanet/turnkeeper/internal/models"
	"github.com/iudanet/turnkeeper/internal/ruleset"
	"github.com/iudanet/turnkeeper/internal/server/storage"
)

// dispatch handles one attached-state message
func (c *Conn) dispatch(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case api.RequestLog:
		c.handleRequestLog(ctx, m)
	case api.Event:
		c.handleEvent(ctx, m)
	case api.RequestRuleset:
		c.handleRequestRuleset(ctx, m)
	case api.Ruleset:
		c.handleRuleset(ctx, m)
	case api.RulesetPatch:
		c.handleRulesetPatch(ctx, m)
	case api.Error:
		// Ошибки клиента только логируются: соединение живет дальше
		c.engine.logger.Warn("client reported error",
			"client_id", c.clientID,
			"code", m.Code,
			"message", m.Message)
	case api.Hello:
		c.sendError(api.ErrorCodeProtocol, "already attached")
	default:
		// attached, log — сообщения направления сервер→клиент
		c.sendError(api.ErrorCodeProtocol, fmt.Sprintf("unexpected message %T", msg))
	}
}

// handleRequestLog replies with the n most recent entries of the attached
// game. n == 0 or anything wider than the configured maximum is answered
// with the whole log, so a widening reconciliation always terminates.
func (c *Conn) handleRequestLog(ctx context.Context, m api.RequestLog) {
	if m.GameID != "" && m.GameID != c.gameID {
		c.sendError(api.ErrorCodeProtocol, "log requests are scoped to the attached game")
		return
	}

	n := m.N
	if n > c.engine.cfg.MaxLogRequest {
		n = 0
	}

	entries, err := c.engine.eventLog.Tail(ctx, c.gameID, n)
	if err != nil {
		c.engine.logger.Error("failed to read log tail",
			"game_id", c.gameID,
			"error", err)
		c.sendError(api.ErrorCodeInternal, "failed to read log")
		return
	}

	c.send(api.Log{GameID: c.gameID, Entries: toAPIEntries(entries)})
}

// handleEvent appends the opaque payload to the game's log and broadcasts
// the tail window to every session member, the sender included. Append and
// broadcast run under the session's ordering lock: no subscriber can observe
// windows in an order different from the append order.
func (c *Conn) handleEvent(ctx context.Context, m api.Event) {
	var dropped []string

	err := c.sess.WithOrdering(func() error {
		if _, err := c.engine.eventLog.Append(ctx, c.gameID, m.Payload); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}

		entries, err := c.engine.eventLog.Tail(ctx, c.gameID, api.TailWindow)
		if err != nil {
			return fmt.Errorf("failed to read tail window: %w", err)
		}

		data, err := api.Encode(api.Log{GameID: c.gameID, Entries: toAPIEntries(entries)})
		if err != nil {
			return fmt.Errorf("failed to encode window: %w", err)
		}

		dropped = c.sess.Broadcast(data, "")
		return nil
	})
	if err != nil {
		c.engine.logger.Error("event append failed",
			"client_id", c.clientID,
			"game_id", c.gameID,
			"error", err)
		c.sendError(api.ErrorCodeInternal, "failed to append event")
		return
	}

	// Отключенные при broadcast подписчики вычищаются из реестра
	for _, clientID := range dropped {
		c.engine.registry.Detach(ctx, c.gameID, clientID)
	}
}

func (c *Conn) handleRequestRuleset(ctx context.Context, m api.RequestRuleset) {
	version, err := c.engine.rulesets.Load(ctx, m.Hash)
	if err != nil {
		if errors.Is(err, storage.ErrRulesetNotFound) {
			c.sendError(api.ErrorCodeNotFound, fmt.Sprintf("no ruleset version %q", m.Hash))
			return
		}
		c.sendError(api.ErrorCodeInternal, "failed to load ruleset")
		return
	}

	c.send(api.Ruleset{Hash: version.Hash, Document: version.Document})
}

// handleRuleset accepts a full-document ruleset push: verify the claimed
// hash, store the version, then resolve it against the session's
// authoritative one.
func (c *Conn) handleRuleset(ctx context.Context, m api.Ruleset) {
	hash, err := c.engine.rulesets.Save(ctx, m.Hash, m.Document)
	if err != nil {
		if errors.Is(err, storage.ErrHashMismatch) {
			c.sendError(api.ErrorCodeHashMismatch, "document does not match claimed hash")
			return
		}
		c.sendError(api.ErrorCodeInternal, "failed to save ruleset")
		return
	}

	if push := c.resolveRuleset(ctx, hash); push != nil {
		c.send(push)
	}
}

// handleRulesetPatch applies a diff-derived update: the patch must transform
// the document at OldHash into one hashing exactly to NewHash, otherwise the
// write is rejected and authoritative state stays unchanged.
func (c *Conn) handleRulesetPatch(ctx context.Context, m api.RulesetPatch) {
	if m.GameID != "" && m.GameID != c.gameID {
		c.sendError(api.ErrorCodeProtocol, "ruleset patches are scoped to the attached game")
		return
	}

	hash, err := c.engine.rulesets.ApplyPatch(ctx, m.OldHash, m.Patch, m.NewHash)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrRulesetNotFound):
			c.sendError(api.ErrorCodeNotFound, fmt.Sprintf("no ruleset version %q", m.OldHash))
		case errors.Is(err, ruleset.ErrPatchMismatch):
			c.sendError(api.ErrorCodePatchMismatch, "patched document does not match claimed hash")
		default:
			c.sendError(api.ErrorCodeProtocol, fmt.Sprintf("failed to apply patch: %v", err))
		}
		return
	}

	if push := c.resolveRuleset(ctx, hash); push != nil {
		c.send(push)
	}
}

// resolveRuleset reconciles a stored candidate version against the session's
// authoritative one. The newer store-creation timestamp wins. Adoption flips
// the session hash and pushes the delta to every other member; a losing
// candidate earns the caller a catch-up message, returned for the caller to
// send (after attached, during handshake).
//
// Precondition: a non-empty candidate is already present in the store.
func (c *Conn) resolveRuleset(ctx context.Context, candidate string) any {
	current := c.sess.RulesetHash()

	switch {
	case candidate == current:
		return nil

	case candidate == "":
		// У клиента нет версии — догоняем полным документом
		version, err := c.engine.rulesets.Load(ctx, current)
		if err != nil {
			c.engine.logger.Error("failed to load authoritative ruleset",
				"game_id", c.gameID,
				"hash", current,
				"error", err)
			return nil
		}
		return api.Ruleset{Hash: version.Hash, Document: version.Document}

	case current == "":
		// У сессии еще нет ruleset: версия клиента становится авторитетной
		c.adoptRuleset(ctx, "", candidate)
		return nil

	default:
		candidateAt, err := c.engine.rulesets.VersionTimestamp(ctx, candidate)
		if err != nil {
			c.engine.logger.Error("failed to read version timestamp",
				"hash", candidate, "error", err)
			return nil
		}
		currentAt, err := c.engine.rulesets.VersionTimestamp(ctx, current)
		if err != nil {
			c.engine.logger.Error("failed to read version timestamp",
				"hash", current, "error", err)
			return nil
		}

		if candidateAt.After(currentAt) {
			c.adoptRuleset(ctx, current, candidate)
			return nil
		}

		// Сервер выигрывает: клиент догоняется диффом от своей версии
		patch, err := c.engine.rulesets.Diff(ctx, candidate, current)
		if err != nil {
			c.engine.logger.Error("failed to diff ruleset versions",
				"old", candidate, "new", current, "error", err)
			return nil
		}
		return api.RulesetPatch{
			GameID:  c.gameID,
			OldHash: candidate,
			NewHash: current,
			Patch:   patch,
		}
	}
}

// adoptRuleset makes candidate the session's authoritative version and
// propagates the change to every other session member: as a diff when the
// session had a previous version, as a full document otherwise.
func (c *Conn) adoptRuleset(ctx context.Context, previous, candidate string) {
	c.sess.SetRulesetHash(candidate)

	if err := c.engine.registry.UpdateClientRuleset(ctx, c.sess, c.clientID, candidate); err != nil {
		c.engine.logger.Error("failed to update client ruleset record",
			"client_id", c.clientID,
			"error", err)
	}

	var update any
	if previous == "" {
		version, err := c.engine.rulesets.Load(ctx, candidate)
		if err != nil {
			c.engine.logger.Error("failed to load adopted ruleset",
				"hash", candidate, "error", err)
			return
		}
		update = api.Ruleset{Hash: version.Hash, Document: version.Document}
	} else {
		patch, err := c.engine.rulesets.Diff(ctx, previous, candidate)
		if err != nil {
			c.engine.logger.Error("failed to diff ruleset versions",
				"old", previous, "new", candidate, "error", err)
			return
		}
		update = api.RulesetPatch{
			GameID:  c.gameID,
			OldHash: previous,
			NewHash: candidate,
			Patch:   patch,
		}
	}

	data, err := api.Encode(update)
	if err != nil {
		c.engine.logger.Error("failed to encode ruleset update", "error", err)
		return
	}

	dropped := c.sess.Broadcast(data, c.clientID)
	for _, clientID := range dropped {
		c.engine.registry.Detach(ctx, c.gameID, clientID)
	}

	c.engine.logger.Info("ruleset adopted",
		"game_id", c.gameID,
		"previous", previous,
		"hash", candidate,
		"proposed_by", c.clientID)
}

func toAPIEntries(entries []models.LogEntry) []api.LogEntry {
	out := make([]api.LogEntry, len(entries))
	for i, e := range entries {
		out[i] = api.LogEntry{Timestamp: e.Timestamp, Payload: e.Payload}
	}
	return out
}

package storage

import (
	"context"

	"github.com/iudanet/turnkeeper/internal/models"
)

// EventLogStorage defines interface for per-game append-only log persistence.
// Each game owns exactly one log; the log outlives any session.
type EventLogStorage interface {
	// Append assigns the next timestamp (strictly greater than every prior
	// entry of the game, even under concurrent appends) and persists the
	// entry durably before returning the assigned timestamp.
	// The game row is created on first use of gameID.
	// A failed append must not advance the timestamp counter.
	Append(ctx context.Context, gameID string, payload []byte) (int64, error)

	// Tail returns the n most recent entries ordered oldest to newest
	// (fewer if the log is shorter). n <= 0 returns the whole log.
	Tail(ctx context.Context, gameID string, n int) ([]models.LogEntry, error)

	// RangeFrom returns entries with timestamp strictly greater than after,
	// ascending. Used for backlog catch-up.
	RangeFrom(ctx context.Context, gameID string, after int64) ([]models.LogEntry, error)

	// Contains reports whether the game's log has an entry at timestamp.
	Contains(ctx context.Context, gameID string, timestamp int64) (bool, error)

	// LastTimestamp returns the highest assigned timestamp of the game's
	// log, 0 when the log is empty or the game does not exist yet.
	LastTimestamp(ctx context.Context, gameID string) (int64, error)

	// GameExists reports whether a game log was ever created for gameID.
	// Used as the existence check for game id allocation.
	GameExists(ctx context.Context, gameID string) (bool, error)

	// CreateGame creates the game row. Idempotent: creating an existing
	// game is a no-op.
	CreateGame(ctx context.Context, gameID string) error
}

package storage

import (
	"context"

	"github.com/iudanet/turnkeeper/internal/models"
)

// LogStorage is the local replica of per-game logs. The replica mirrors a
// prefix of the server's log plus, transiently, a divergent suffix that
// reconciliation truncates; the server copy is always authoritative.
type LogStorage interface {
	// AppendEntries persists entries at the end of the game's local log.
	// Entries must already be ordered oldest to newest.
	AppendEntries(ctx context.Context, gameID string, entries []models.LogEntry) error

	// LastEntry returns the newest local entry of the game.
	// Returns ErrEntryNotFound when the local log is empty.
	LastEntry(ctx context.Context, gameID string) (*models.LogEntry, error)

	// Entries returns the whole local log ordered oldest to newest
	Entries(ctx context.Context, gameID string) ([]models.LogEntry, error)

	// TruncateAfter drops every local entry with timestamp strictly greater
	// than timestamp. Used to discard a divergent suffix.
	TruncateAfter(ctx context.Context, gameID string, timestamp int64) error

	// ReplaceLog atomically replaces the local log with entries
	ReplaceLog(ctx context.Context, gameID string, entries []models.LogEntry) error
}

package storage

import (
	"context"
	"time"

	"github.com/iudanet/turnkeeper/internal/models"
)

// RulesetStorage defines interface for the content-addressed ruleset store.
// Versions are keyed by the computed hash of their document and are never
// deleted (append-only store, deduplicated by hash).
type RulesetStorage interface {
	// SaveVersion persists a ruleset document under its hash.
	// Idempotent: saving an already-present hash succeeds without
	// rewriting (and without touching the creation timestamp).
	SaveVersion(ctx context.Context, version *models.RulesetVersion) error

	// LoadVersion retrieves a ruleset version by hash.
	// Returns ErrRulesetNotFound if the hash is absent.
	LoadVersion(ctx context.Context, hash string) (*models.RulesetVersion, error)

	// VersionCreatedAt returns the store-creation time of a version.
	// Used only for conflict tie-breaking, never for document semantics.
	// Returns ErrRulesetNotFound if the hash is absent.
	VersionCreatedAt(ctx context.Context, hash string) (time.Time, error)

	// VersionExists reports whether a version with the hash is stored.
	VersionExists(ctx context.Context, hash string) (bool, error)
}

// RegistryStorage defines interface for the persisted client record table:
// one row per connected client (client_id, session_id, game_id, ruleset_hash).
type RegistryStorage interface {
	// PutClientRecord creates or replaces the record for
	// (client_id, session_id).
	PutClientRecord(ctx context.Context, record *models.ClientRecord) error

	// DeleteClientRecord removes a single client's record.
	// Removing an absent record is a no-op.
	DeleteClientRecord(ctx context.Context, sessionID, clientID string) error

	// DeleteSessionRecords removes every record of a session.
	// Used on explicit session close.
	DeleteSessionRecords(ctx context.Context, sessionID string) error

	// ListSessionRecords returns the records of a session ordered by
	// connection time.
	ListSessionRecords(ctx context.Context, sessionID string) ([]*models.ClientRecord, error)
}

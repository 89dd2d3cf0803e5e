package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/turnkeeper/internal/models"
	"github.com/iudanet/turnkeeper/internal/server/storage"
)

// SaveVersion persists a ruleset document under its hash.
// Idempotent by hash: INSERT OR IGNORE leaves an already-present version
// (including its creation timestamp) untouched, so concurrent writers racing
// to store the same content are safe.
func (s *Storage) SaveVersion(ctx context.Context, version *models.RulesetVersion) error {
	createdAt := version.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO rulesets (hash, document, created_at) VALUES (?, ?, ?)`,
		version.Hash, version.Document, createdAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to save ruleset version: %w", err)
	}

	return nil
}

// LoadVersion retrieves a ruleset version by hash.
// Returns ErrRulesetNotFound if the hash is absent.
func (s *Storage) LoadVersion(ctx context.Context, hash string) (*models.RulesetVersion, error) {
	version := &models.RulesetVersion{}
	var createdAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT hash, document, created_at FROM rulesets WHERE hash = ?`,
		hash,
	).Scan(&version.Hash, &version.Document, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRulesetNotFound
		}
		return nil, fmt.Errorf("failed to load ruleset version: %w", err)
	}

	version.CreatedAt = time.Unix(0, createdAt)
	return version, nil
}

// VersionCreatedAt returns the store-creation time of a version.
// Returns ErrRulesetNotFound if the hash is absent.
func (s *Storage) VersionCreatedAt(ctx context.Context, hash string) (time.Time, error) {
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM rulesets WHERE hash = ?`,
		hash,
	).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, storage.ErrRulesetNotFound
		}
		return time.Time{}, fmt.Errorf("failed to read ruleset timestamp: %w", err)
	}
	return time.Unix(0, createdAt), nil
}

// VersionExists reports whether a version with the hash is stored
func (s *Storage) VersionExists(ctx context.Context, hash string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM rulesets WHERE hash = ?`, hash,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check ruleset existence: %w", err)
	}
	return true, nil
}

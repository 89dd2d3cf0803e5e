package storage

import (
	"context"

	"github.com/iudanet/turnkeeper/internal/models"
)

// RulesetStorage is the client's content-addressed cache of ruleset
// versions plus the per-game pointer to the active one.
type RulesetStorage interface {
	// SaveVersion stores a version under its hash. Idempotent.
	SaveVersion(ctx context.Context, version *models.RulesetVersion) error

	// LoadVersion retrieves the document at hash.
	// Returns ErrRulesetNotFound when absent.
	LoadVersion(ctx context.Context, hash string) (*models.RulesetVersion, error)

	// SetActiveHash marks hash as the game's active ruleset version
	SetActiveHash(ctx context.Context, gameID, hash string) error

	// ActiveHash returns the game's active version hash, "" when none
	ActiveHash(ctx context.Context, gameID string) (string, error)
}

package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/turnkeeper/internal/client/storage"
	"github.com/iudanet/turnkeeper/internal/models"
)

// activeKey — ключ активной версии игры в meta bucket
func activeKey(gameID string) []byte {
	return []byte("active:" + gameID)
}

// SaveVersion stores a version under its hash. Idempotent.
func (s *Storage) SaveVersion(ctx context.Context, version *models.RulesetVersion) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := json.Marshal(version)
	if err != nil {
		return fmt.Errorf("failed to marshal ruleset version: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketRulesets).Put([]byte(version.Hash), data); err != nil {
			return fmt.Errorf("failed to save version: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// LoadVersion retrieves the document at hash
func (s *Storage) LoadVersion(ctx context.Context, hash string) (*models.RulesetVersion, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var version *models.RulesetVersion

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRulesets).Get([]byte(hash))
		if data == nil {
			return storage.ErrRulesetNotFound
		}

		version = &models.RulesetVersion{}
		if err := json.Unmarshal(data, version); err != nil {
			return fmt.Errorf("failed to unmarshal version: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return version, nil
}

// SetActiveHash marks hash as the game's active ruleset version
func (s *Storage) SetActiveHash(ctx context.Context, gameID, hash string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(activeKey(gameID), []byte(hash))
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// ActiveHash returns the game's active version hash, "" when none
func (s *Storage) ActiveHash(ctx context.Context, gameID string) (string, error) {
	if s.db == nil {
		return "", storage.ErrStorageClosed
	}

	var hash string

	err := s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(bucketMeta).Get(activeKey(gameID)); data != nil {
			hash = string(data)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to read active hash: %w", err)
	}

	return hash, nil
}

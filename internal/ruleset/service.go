// Package ruleset implements the content-addressed ruleset store service:
// documents keyed by the hash of their own content, updated either by full
// replacement or by diff-derived patch.
package ruleset

import (
	"context"
	"fmt"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/iudanet/turnkeeper/internal/models"
	"github.com/iudanet/turnkeeper/internal/server/storage"
)

// Service wraps RulesetStorage with content addressing and diff transfer.
type Service struct {
	store storage.RulesetStorage
	dmp   *diffmatchpatch.DiffMatchPatch
}

// NewService creates a new ruleset service over the given storage
func NewService(store storage.RulesetStorage) *Service {
	return &Service{
		store: store,
		dmp:   diffmatchpatch.New(),
	}
}

// Save stores a document under its computed hash and returns that hash.
// A non-empty claimedHash that disagrees with the computed one is rejected
// with ErrHashMismatch and nothing is written: the store indexes by what the
// content actually hashes to, never by what the sender claims.
// Saving already-present content is a no-op, not an error.
func (s *Service) Save(ctx context.Context, claimedHash string, document []byte) (string, error) {
	computed := Hash(document)

	if claimedHash != "" && claimedHash != computed {
		return "", fmt.Errorf("claimed %q, computed %q: %w", claimedHash, computed, storage.ErrHashMismatch)
	}

	if err := s.store.SaveVersion(ctx, &models.RulesetVersion{
		Hash:      computed,
		Document:  document,
		CreatedAt: time.Now(),
	}); err != nil {
		return "", fmt.Errorf("failed to save ruleset: %w", err)
	}

	return computed, nil
}

// Load retrieves the document at hash.
// Returns storage.ErrRulesetNotFound if the hash is absent.
func (s *Service) Load(ctx context.Context, hash string) (*models.RulesetVersion, error) {
	return s.store.LoadVersion(ctx, hash)
}

// Exists reports whether a version with the hash is stored
func (s *Service) Exists(ctx context.Context, hash string) (bool, error) {
	return s.store.VersionExists(ctx, hash)
}

// VersionTimestamp returns the store-creation time of a version. It is a
// tie-breaking input for ruleset conflict resolution and nothing else.
func (s *Service) VersionTimestamp(ctx context.Context, hash string) (time.Time, error) {
	return s.store.VersionCreatedAt(ctx, hash)
}

// Diff produces a patch transforming the document at oldHash into the one
// at newHash, so updates propagate without retransmitting full documents.
// Fails with storage.ErrRulesetNotFound when either version is absent.
func (s *Service) Diff(ctx context.Context, oldHash, newHash string) (string, error) {
	oldVersion, err := s.store.LoadVersion(ctx, oldHash)
	if err != nil {
		return "", fmt.Errorf("failed to load old version: %w", err)
	}

	newVersion, err := s.store.LoadVersion(ctx, newHash)
	if err != nil {
		return "", fmt.Errorf("failed to load new version: %w", err)
	}

	patches := s.dmp.PatchMake(string(oldVersion.Document), string(newVersion.Document))
	return s.dmp.PatchToText(patches), nil
}

// ApplyPatch loads the base document, applies the patch, recomputes the
// resulting document's hash and stores it. A non-empty claimedHash that
// disagrees with the computed result is rejected with ErrPatchMismatch
// before anything is stored, leaving authoritative state unchanged.
func (s *Service) ApplyPatch(ctx context.Context, baseHash, patch, claimedHash string) (string, error) {
	base, err := s.store.LoadVersion(ctx, baseHash)
	if err != nil {
		return "", fmt.Errorf("failed to load base version: %w", err)
	}

	patches, err := s.dmp.PatchFromText(patch)
	if err != nil {
		return "", fmt.Errorf("failed to parse patch: %w", err)
	}

	result, applied := s.dmp.PatchApply(patches, string(base.Document))
	for _, ok := range applied {
		if !ok {
			return "", fmt.Errorf("patch did not apply cleanly to %q", baseHash)
		}
	}

	computed := Hash([]byte(result))
	if claimedHash != "" && claimedHash != computed {
		return "", fmt.Errorf("claimed %q, computed %q: %w", claimedHash, computed, ErrPatchMismatch)
	}

	return s.Save(ctx, computed, []byte(result))
}

package ruleset

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/turnkeeper/internal/server/storage"
	"github.com/iudanet/turnkeeper/internal/server/storage/sqlite"
)

func setupService(t *testing.T) *Service {
	t.Helper()

	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return NewService(store)
}

func TestHash_Deterministic(t *testing.T) {
	doc := []byte("<rules text>")

	assert.Equal(t, Hash(doc), Hash(doc))
	assert.NotEqual(t, Hash(doc), Hash([]byte("<other rules>")))
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), Hash(doc))
}

func TestService_Save_ComputesHash(t *testing.T) {
	ctx := context.Background()
	s := setupService(t)

	doc := []byte("<rules text>")
	hash, err := s.Save(ctx, "", doc)
	require.NoError(t, err)
	assert.Equal(t, Hash(doc), hash)

	loaded, err := s.Load(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, doc, loaded.Document)
}

func TestService_Save_ClaimedHashMismatch(t *testing.T) {
	ctx := context.Background()
	s := setupService(t)

	_, err := s.Save(ctx, "deadbeef", []byte("<rules text>"))
	require.ErrorIs(t, err, storage.ErrHashMismatch)

	// Отклоненная запись не мутирует store
	ok, err := s.Exists(ctx, Hash([]byte("<rules text>")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_Save_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := setupService(t)

	doc := []byte("<rules text>")
	hash1, err := s.Save(ctx, "", doc)
	require.NoError(t, err)

	ts1, err := s.VersionTimestamp(ctx, hash1)
	require.NoError(t, err)

	// Повторный save того же контента — no-op, created_at стабилен
	hash2, err := s.Save(ctx, hash1, doc)
	require.NoError(t, err)
	assert.Equal(t, hash1, hash2)

	ts2, err := s.VersionTimestamp(ctx, hash1)
	require.NoError(t, err)
	assert.Equal(t, ts1, ts2)
}

func TestService_Diff_NotFound(t *testing.T) {
	ctx := context.Background()
	s := setupService(t)

	hash, err := s.Save(ctx, "", []byte("doc"))
	require.NoError(t, err)

	_, err = s.Diff(ctx, hash, "0000000000000000000000000000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, storage.ErrRulesetNotFound)

	_, err = s.Diff(ctx, "0000000000000000000000000000000000000000000000000000000000000000", hash)
	assert.ErrorIs(t, err, storage.ErrRulesetNotFound)
}

func TestService_PatchRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupService(t)

	tests := []struct {
		name string
		d1   string
		d2   string
	}{
		{
			name: "small edit",
			d1:   "pawns move forward one square\nrooks move in straight lines\n",
			d2:   "pawns move forward one square, two on the first move\nrooks move in straight lines\n",
		},
		{
			name: "appended section",
			d1:   "section one\n",
			d2:   "section one\nsection two\n",
		},
		{
			name: "full rewrite",
			d1:   "old rules entirely",
			d2:   "new rules entirely, nothing shared",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h1, err := s.Save(ctx, "", []byte(tt.d1))
			require.NoError(t, err)
			h2, err := s.Save(ctx, "", []byte(tt.d2))
			require.NoError(t, err)

			patch, err := s.Diff(ctx, h1, h2)
			require.NoError(t, err)

			// apply_patch(H1, diff(H1, H2)) == H2
			got, err := s.ApplyPatch(ctx, h1, patch, h2)
			require.NoError(t, err)
			assert.Equal(t, h2, got)
		})
	}
}

func TestService_ApplyPatch_BadPatchText(t *testing.T) {
	ctx := context.Background()
	s := setupService(t)

	hash, err := s.Save(ctx, "", []byte("doc"))
	require.NoError(t, err)

	_, err = s.ApplyPatch(ctx, hash, "not a patch", "")
	assert.Error(t, err)
}

func TestService_ApplyPatch_ClaimedHashMismatch(t *testing.T) {
	ctx := context.Background()
	s := setupService(t)

	h1, err := s.Save(ctx, "", []byte("base document"))
	require.NoError(t, err)
	h2, err := s.Save(ctx, "", []byte("edited document"))
	require.NoError(t, err)

	patch, err := s.Diff(ctx, h1, h2)
	require.NoError(t, err)

	wrong := Hash([]byte("something else"))
	_, err = s.ApplyPatch(ctx, h1, patch, wrong)
	assert.ErrorIs(t, err, ErrPatchMismatch)
}

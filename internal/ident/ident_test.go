package ident

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestGenerate_Format(t *testing.T) {
	id, err := Generate(nil)
	require.NoError(t, err)
	assert.Regexp(t, hexID, id)
}

func TestGenerate_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := Generate(func(id string) (bool, error) {
			return seen[id], nil
		})
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, seen, 1000)
}

func TestGenerate_RetriesOnCollision(t *testing.T) {
	// Первые две попытки объявляем занятыми
	calls := 0
	id, err := Generate(func(id string) (bool, error) {
		calls++
		return calls <= 2, nil
	})
	require.NoError(t, err)
	assert.Regexp(t, hexID, id)
	assert.Equal(t, 3, calls)
}

func TestGenerate_Exhausted(t *testing.T) {
	// exists всегда true — имитация сломанного random source
	_, err := Generate(func(id string) (bool, error) {
		return true, nil
	})
	assert.ErrorIs(t, err, ErrAllocationExhausted)
}

func TestGenerate_ExistsError(t *testing.T) {
	boom := errors.New("storage down")
	_, err := Generate(func(id string) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

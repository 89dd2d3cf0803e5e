// Package ident generates large random identifiers with a caller-supplied
// uniqueness check. Identifiers are 32 random bytes (2^256 space) hex-encoded,
// so the expected number of rejection-sampling retries is effectively one.
package ident

import (
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// IDBytes размер идентификатора в байтах (256 бит)
const IDBytes = 32

// maxAttempts ограничивает rejection sampling. При корректном источнике
// случайности и пространстве 2^256 лимит недостижим: его исчерпание
// означает сломанный random source и фатально для процесса.
const maxAttempts = 64

// ErrAllocationExhausted indicates the generator failed to find an unused id
// within the attempt budget. Practically unreachable; treat as fatal.
var ErrAllocationExhausted = errors.New("id allocation exhausted")

// ExistsFunc reports whether an id is already taken. It must be consistent
// with concurrent allocation: callers guard Generate with the same lock that
// protects the set the check reads.
type ExistsFunc func(id string) (bool, error)

// Generate draws uniformly random ids and retries while exists reports true.
// The loop is iterative, not recursive, so adversarial collision rates cannot
// grow the stack.
func Generate(exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		id, err := newID()
		if err != nil {
			return "", err
		}

		if exists == nil {
			return id, nil
		}

		taken, err := exists(id)
		if err != nil {
			return "", fmt.Errorf("failed to check id existence: %w", err)
		}
		if !taken {
			return id, nil
		}
	}

	return "", ErrAllocationExhausted
}

// newID возвращает hex-кодированные 32 случайных байта
func newID() (string, error) {
	buf := make([]byte, IDBytes)
	if _, err := crand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

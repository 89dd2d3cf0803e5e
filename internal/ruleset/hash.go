package ruleset

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hash computes the content address of a ruleset document: BLAKE2b-256,
// hex-encoded. Equal documents always map to the same hash, which is what
// makes deduplication and the idempotent save safe.
func Hash(document []byte) string {
	sum := blake2b.Sum256(document)
	return hex.EncodeToString(sum[:])
}

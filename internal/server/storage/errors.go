package storage

import "errors"

// Common storage errors
var (
	// ErrGameNotFound indicates that game (and its log) was not found
	ErrGameNotFound = errors.New("game not found")

	// ErrEntryNotFound indicates that log entry was not found
	ErrEntryNotFound = errors.New("log entry not found")

	// ErrRulesetNotFound indicates that ruleset version was not found
	ErrRulesetNotFound = errors.New("ruleset version not found")

	// ErrHashMismatch indicates that a caller-supplied hash disagrees with
	// the computed content hash; the write is rejected and nothing mutates
	ErrHashMismatch = errors.New("ruleset hash mismatch")

	// ErrRecordNotFound indicates that client record was not found
	ErrRecordNotFound = errors.New("client record not found")
)

// Package storage defines the client-side persistence interfaces: the local
// replica of each game's log and the cache of ruleset versions.
package storage

import "errors"

var (
	// ErrStorageClosed база данных закрыта
	ErrStorageClosed = errors.New("storage is closed")

	// ErrEntryNotFound запись лога не найдена (или лог пуст)
	ErrEntryNotFound = errors.New("log entry not found")

	// ErrRulesetNotFound версия ruleset отсутствует в локальном кеше
	ErrRulesetNotFound = errors.New("ruleset version not found")
)

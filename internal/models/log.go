package models

import "time"

// LogEntry представляет одну запись append-only лога игры.
// Timestamp — логический серверный timestamp: уникален и строго
// возрастает в рамках одной игры (одновременно ключ сортировки и
// первичный ключ). Payload непрозрачен: сервер хранит, упорядочивает
// и ретранслирует его, но никогда не интерпретирует.
type LogEntry struct {
	AppendedAt time.Time `json:"appended_at"` // физическое время записи (для диагностики)
	GameID     string    `json:"game_id"`     // игра, которой принадлежит запись
	Payload    []byte    `json:"payload"`     // непрозрачный игровой payload (JSON blob)
	Timestamp  int64     `json:"timestamp"`   // логический timestamp, уникален в рамках игры
}

// Equal reports whether two entries carry the same timestamp and payload.
// This is the continuity check of the reconciliation protocol: a window's
// oldest entry must Equal the receiver's last applied entry.
func (e LogEntry) Equal(other LogEntry) bool {
	return e.Timestamp == other.Timestamp && string(e.Payload) == string(other.Payload)
}

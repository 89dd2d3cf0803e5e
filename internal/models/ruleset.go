package models

import "time"

// RulesetVersion — одна версия документа правил в content-addressed
// хранилище. Hash вычисляется из содержимого (BLAKE2b-256, hex):
// одинаковые документы всегда дают одинаковый хеш, что позволяет
// безопасную дедупликацию. Версии никогда не удаляются.
type RulesetVersion struct {
	CreatedAt time.Time `json:"created_at"` // время сохранения; используется только для tie-break конфликтов
	Hash      string    `json:"hash"`
	Document  []byte    `json:"document"`
}

// Game identifies one game and its log. Created on first use of a game id,
// persists indefinitely: closing a session never deletes the game.
type Game struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"` // большой случайный id, уникален среди всех игр
}

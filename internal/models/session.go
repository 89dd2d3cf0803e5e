package models

import "time"

// Session связывает подключённых клиентов с одной игрой и одной
// авторитетной версией ruleset. Сессия — это scope маршрутизации и
// авторизации: вне сессии операции невалидны, broadcast идёт по всем
// клиентам сессии. Сессия короткоживущая, лог игры её переживает.
type Session struct {
	ID          string `json:"id"`           // большой случайный id, уникален среди активных сессий
	GameID      string `json:"game_id"`      // игра, которой управляет сессия
	RulesetHash string `json:"ruleset_hash"` // текущий авторитетный хеш ruleset ("" пока не согласован)
}

// ClientRecord is one row per connected client, recording the ruleset
// version that client last acknowledged. Created on successful handshake,
// deleted on disconnect or session close.
type ClientRecord struct {
	ConnectedAt time.Time `json:"connected_at"`
	ClientID    string    `json:"client_id"`
	SessionID   string    `json:"session_id"`
	GameID      string    `json:"game_id"`
	RulesetHash string    `json:"ruleset_hash"`
}

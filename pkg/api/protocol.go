package api

import "encoding/json"

// MessageType идентифицирует тип протокольного сообщения.
// Набор типов закрытый: неизвестный тег — это ошибка декодирования,
// а не runtime fallthrough.
type MessageType string

const (
	// MessageTypeHello handshake от клиента сразу после установки соединения
	MessageTypeHello MessageType = "hello"
	// MessageTypeAttached подтверждение сервера об успешном подключении к сессии
	MessageTypeAttached MessageType = "attached"
	// MessageTypeRequestLog запрос хвоста лога (n последних записей)
	MessageTypeRequestLog MessageType = "request-log"
	// MessageTypeLog упорядоченный фрагмент лога (ответ или broadcast окна)
	MessageTypeLog MessageType = "log"
	// MessageTypeRequestRuleset запрос полного документа ruleset по хешу
	MessageTypeRequestRuleset MessageType = "request-ruleset"
	// MessageTypeRuleset push полного документа ruleset
	MessageTypeRuleset MessageType = "ruleset"
	// MessageTypeRulesetPatch push диффа между двумя версиями ruleset
	MessageTypeRulesetPatch MessageType = "ruleset-patch"
	// MessageTypeEvent непрозрачное игровое событие для append в лог
	MessageTypeEvent MessageType = "event"
	// MessageTypeError ошибка протокола, отправляется инициатору
	MessageTypeError MessageType = "error"
)

// TailWindow is the number of most recent log entries broadcast after every
// append. The window gives every receiver exactly one overlap entry to check
// continuity against its own last applied entry. The server broadcast and the
// client reconciliation check MUST use the same value, so it lives here and
// nowhere else.
const TailWindow = 2

// Envelope is the outer wire frame: a type tag plus the raw payload.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// LogEntry is one entry of a game's append-only log. Payload is opaque to
// the server: it is stored, ordered and relayed, never interpreted.
type LogEntry struct {
	Payload   json.RawMessage `json:"payload"`   // непрозрачный игровой payload
	Timestamp int64           `json:"timestamp"` // серверный логический timestamp, уникален в рамках игры
}

// Equal reports whether two entries match in both timestamp and payload.
// Used by the client-side continuity check.
func (e LogEntry) Equal(other LogEntry) bool {
	return e.Timestamp == other.Timestamp && string(e.Payload) == string(other.Payload)
}

// Hello is the handshake message sent once per connection.
type Hello struct {
	ClientID    string `json:"client_id"`
	GameID      string `json:"game_id"`
	RulesetHash string `json:"ruleset_hash"` // хеш версии ruleset, известной клиенту ("" если нет)
}

// Attached acknowledges a completed handshake.
type Attached struct {
	SessionID   string `json:"session_id"`
	GameID      string `json:"game_id"`
	RulesetHash string `json:"ruleset_hash"` // авторитетный хеш сессии
}

// RequestLog asks for the N most recent log entries of a game.
// N == 0 requests the log from the very beginning (full resync).
type RequestLog struct {
	GameID string `json:"game_id"`
	N      int    `json:"n"`
}

// Log carries an ordered (oldest to newest) sequence of log entries.
type Log struct {
	GameID  string     `json:"game_id"`
	Entries []LogEntry `json:"entries"`
}

// RequestRuleset asks the peer to push the full document at Hash.
// Fire-and-forget: the response arrives as a separate Ruleset message.
type RequestRuleset struct {
	Hash string `json:"hash"`
}

// Ruleset pushes a full ruleset document claiming Hash. The receiver
// recomputes the hash and rejects the push when they disagree.
type Ruleset struct {
	Hash     string `json:"hash"`
	Document []byte `json:"document"`
}

// RulesetPatch pushes a diff-derived ruleset update: applying Patch to the
// document at OldHash must yield the document at NewHash.
type RulesetPatch struct {
	GameID  string `json:"game_id"`
	OldHash string `json:"old_hash"`
	NewHash string `json:"new_hash"`
	Patch   string `json:"patch"`
}

// Event is an opaque game event to be appended to the game's log.
type Event struct {
	Payload json.RawMessage `json:"payload"`
}

// ErrorCode classifies protocol errors reported back to a connection.
type ErrorCode string

const (
	// ErrorCodeNotFound запрошенный лог, ruleset или сессия не существует
	ErrorCodeNotFound ErrorCode = "not_found"
	// ErrorCodeHashMismatch заявленный хеш не совпадает с вычисленным
	ErrorCodeHashMismatch ErrorCode = "hash_mismatch"
	// ErrorCodePatchMismatch применение patch не дало заявленный хеш
	ErrorCodePatchMismatch ErrorCode = "patch_mismatch"
	// ErrorCodeProtocol некорректное или нераспознанное сообщение
	ErrorCodeProtocol ErrorCode = "protocol_error"
	// ErrorCodeInternal внутренняя ошибка сервера (durable write и т.п.)
	ErrorCodeInternal ErrorCode = "internal_error"
)

// Error reports a protocol-level failure to the peer. It is contained to the
// connection that triggered it and never fatal to the server.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

package validation

import (
	"fmt"
	"regexp"
)

// ClientIDPattern определяет допустимый формат client_id.
// Буквы, цифры, дефис и нижнее подчеркивание, длина 1-64 символа
// (UUID и короткие человекочитаемые имена проходят).
var ClientIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// idPattern — формат сгенерированных идентификаторов игр и сессий:
// hex-строка, до 64 символов (256 бит)
var idPattern = regexp.MustCompile(`^[0-9a-f]{1,64}$`)

// hashPattern — формат content-хеша ruleset: ровно 64 hex-символа
// (BLAKE2b-256)
var hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

const (
	// MaxClientIDLen максимальная длина client_id
	MaxClientIDLen = 64
)

// ValidateClientID проверяет, что client_id соответствует требованиям
func ValidateClientID(clientID string) error {
	if clientID == "" {
		return fmt.Errorf("client id cannot be empty")
	}
	if !ClientIDPattern.MatchString(clientID) {
		return fmt.Errorf("client id can only contain letters, numbers, hyphens and underscores (max %d characters)", MaxClientIDLen)
	}
	return nil
}

// ValidateGameID проверяет формат идентификатора игры
func ValidateGameID(gameID string) error {
	if gameID == "" {
		return fmt.Errorf("game id cannot be empty")
	}
	if !idPattern.MatchString(gameID) {
		return fmt.Errorf("game id must be a lowercase hex string (max 64 characters)")
	}
	return nil
}

// ValidateRulesetHash проверяет формат content-хеша ruleset.
// Пустой хеш допустим: он означает "у клиента ещё нет ruleset".
func ValidateRulesetHash(hash string) error {
	if hash == "" {
		return nil
	}
	if !hashPattern.MatchString(hash) {
		return fmt.Errorf("ruleset hash must be a 64-character lowercase hex string")
	}
	return nil
}

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateClientID(t *testing.T) {
	tests := []struct {
		name     string
		clientID string
		wantErr  bool
	}{
		{name: "valid uuid style", clientID: "550e8400-e29b-41d4-a716-446655440000", wantErr: false},
		{name: "valid short name", clientID: "player_a", wantErr: false},
		{name: "empty", clientID: "", wantErr: true},
		{name: "spaces", clientID: "player a", wantErr: true},
		{name: "too long", clientID: strings.Repeat("a", 65), wantErr: true},
		{name: "unicode", clientID: "игрок", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateClientID(tt.clientID)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateGameID(t *testing.T) {
	tests := []struct {
		name    string
		gameID  string
		wantErr bool
	}{
		{name: "valid generated id", gameID: strings.Repeat("ab", 32), wantErr: false},
		{name: "valid short id", gameID: "42", wantErr: false},
		{name: "empty", gameID: "", wantErr: true},
		{name: "uppercase", gameID: "ABCDEF", wantErr: true},
		{name: "too long", gameID: strings.Repeat("a", 65), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGameID(tt.gameID)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRulesetHash(t *testing.T) {
	assert.NoError(t, ValidateRulesetHash(""), "empty hash means client has no ruleset yet")
	assert.NoError(t, ValidateRulesetHash(strings.Repeat("0123456789abcdef", 4)))
	assert.Error(t, ValidateRulesetHash("abc"))
	assert.Error(t, ValidateRulesetHash(strings.Repeat("G", 64)))
}

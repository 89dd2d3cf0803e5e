package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iudanet/turnkeeper/pkg/api"

	"github.com/iudanet/turnkeeper/internal/client"
	"github.com/iudanet/turnkeeper/internal/validation"
)

// RunPlay connects to a game and runs the interactive loop: every input
// line becomes an event, every broadcast window is printed as it lands in
// the local replica.
func (c *Cli) RunPlay(ctx context.Context, gameID, clientID string) error {
	if err := validation.ValidateGameID(gameID); err != nil {
		return fmt.Errorf("invalid game id: %w", err)
	}
	if err := validation.ValidateClientID(clientID); err != nil {
		return fmt.Errorf("invalid client id: %w", err)
	}

	sess := client.NewSession(c.logger, client.Config{
		ServerURL: c.serverURL,
		ClientID:  clientID,
		GameID:    gameID,
		Token:     c.token,
	}, c.store)

	if err := sess.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer sess.Close()

	attached := sess.Attached()
	c.io.Printf("Attached to game %s (session %s)\n", attached.GameID, attached.SessionID)
	if attached.RulesetHash != "" {
		c.io.Printf("Ruleset: %s\n", attached.RulesetHash)
	}
	c.io.Println("Type an event (JSON or plain text), 'quit' to leave")

	// Цикл приема живет, пока соединение открыто
	runDone := make(chan error, 1)
	go func() {
		runDone <- sess.Run(ctx, func(window []api.LogEntry) {
			for _, entry := range window {
				c.io.Printf("[%d] %s\n", entry.Timestamp, entry.Payload)
			}
		})
	}()

	for {
		line, err := c.io.ReadInput("> ")
		if err != nil {
			break
		}
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		if err := sess.SendEvent(eventPayload(line)); err != nil {
			c.io.Printf("Failed to send: %v\n", err)
			break
		}
	}

	_ = sess.Close()
	return <-runDone
}

// eventPayload оборачивает не-JSON ввод в {"text": ...}
func eventPayload(line string) json.RawMessage {
	if json.Valid([]byte(line)) {
		return json.RawMessage(line)
	}

	wrapped, err := json.Marshal(map[string]string{"text": line})
	if err != nil {
		// Marshal map[string]string не может упасть
		return json.RawMessage(`{}`)
	}
	return wrapped
}

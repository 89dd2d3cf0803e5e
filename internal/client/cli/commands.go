package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/iudanet/turnkeeper/internal/auth"
	"github.com/iudanet/turnkeeper/internal/models"
	"github.com/iudanet/turnkeeper/internal/ruleset"
	"github.com/iudanet/turnkeeper/internal/validation"
)

// RunNewGame создает игру на сервере и печатает ее id
func (c *Cli) RunNewGame(ctx context.Context) error {
	gameID, err := c.apiClient.CreateGame(ctx)
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}

	c.io.Printf("Game created: %s\n", gameID)
	return nil
}

// RunStatus проверяет доступность сервера
func (c *Cli) RunStatus(ctx context.Context) error {
	health, err := c.apiClient.Health(ctx)
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}

	c.io.Printf("Server:  %s\n", c.serverURL)
	c.io.Printf("Status:  %s\n", health.Status)
	c.io.Printf("Version: %s\n", health.Version)
	return nil
}

// RunToken mints a connection token for clientID. The signing secret comes
// from TURNKEEPER_AUTH_SECRET or an interactive prompt; it must match the
// server's secret.
func (c *Cli) RunToken(clientID string, ttl time.Duration) error {
	if err := validation.ValidateClientID(clientID); err != nil {
		return fmt.Errorf("invalid client id: %w", err)
	}

	secret := os.Getenv("TURNKEEPER_AUTH_SECRET")
	if secret == "" {
		var err error
		secret, err = c.io.ReadPassword("Signing secret: ")
		if err != nil {
			return fmt.Errorf("failed to read secret: %w", err)
		}
	}
	if secret == "" {
		return fmt.Errorf("signing secret cannot be empty")
	}

	token, err := auth.GenerateToken(auth.Config{
		Secret:   []byte(secret),
		TokenTTL: ttl,
	}, clientID)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	c.io.Println(token)
	return nil
}

// RunLog печатает локальную реплику лога игры
func (c *Cli) RunLog(ctx context.Context, gameID string) error {
	if err := validation.ValidateGameID(gameID); err != nil {
		return fmt.Errorf("invalid game id: %w", err)
	}

	entries, err := c.store.Entries(ctx, gameID)
	if err != nil {
		return fmt.Errorf("failed to read local log: %w", err)
	}

	if len(entries) == 0 {
		c.io.Println("Local log is empty")
		return nil
	}

	for _, entry := range entries {
		c.io.Printf("%6d  %s\n", entry.Timestamp, entry.Payload)
	}
	c.io.Printf("%d entries\n", len(entries))
	return nil
}

// RunRulesetShow печатает активную версию ruleset игры
func (c *Cli) RunRulesetShow(ctx context.Context, gameID string) error {
	if err := validation.ValidateGameID(gameID); err != nil {
		return fmt.Errorf("invalid game id: %w", err)
	}

	hash, err := c.store.ActiveHash(ctx, gameID)
	if err != nil {
		return fmt.Errorf("failed to read active ruleset: %w", err)
	}
	if hash == "" {
		c.io.Println("No active ruleset")
		return nil
	}

	version, err := c.store.LoadVersion(ctx, hash)
	if err != nil {
		return fmt.Errorf("failed to load ruleset: %w", err)
	}

	c.io.Printf("Hash: %s\n", version.Hash)
	c.io.Println("")
	c.io.Printf("%s\n", version.Document)
	return nil
}

// RunRulesetSet activates a ruleset document from file. The version is
// cached locally and proposed to the session on the next connect; timestamp
// conflict resolution on the server decides whether it wins.
func (c *Cli) RunRulesetSet(ctx context.Context, gameID, path string) error {
	if err := validation.ValidateGameID(gameID); err != nil {
		return fmt.Errorf("invalid game id: %w", err)
	}

	document, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read ruleset file: %w", err)
	}

	hash := ruleset.Hash(document)
	if err := c.store.SaveVersion(ctx, &models.RulesetVersion{
		Hash:      hash,
		Document:  document,
		CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to cache ruleset: %w", err)
	}
	if err := c.store.SetActiveHash(ctx, gameID, hash); err != nil {
		return fmt.Errorf("failed to activate ruleset: %w", err)
	}

	c.io.Printf("Ruleset activated: %s\n", hash)
	return nil
}

// Package cli implements the turnkeeper client commands: game creation,
// ruleset management, the local replica inspection and the interactive
// play loop.
package cli

import (
	"log/slog"

	httpapi "github.com/iudanet/turnkeeper/internal/client/api"
	"github.com/iudanet/turnkeeper/internal/client/iocli"
	"github.com/iudanet/turnkeeper/internal/client/storage/boltdb"
)

// Cli связывает команды с общими зависимостями
type Cli struct {
	io        iocli.IO
	logger    *slog.Logger
	apiClient *httpapi.Client
	store     *boltdb.Storage
	serverURL string
	token     string
}

// New creates the command dispatcher
func New(
	io iocli.IO,
	logger *slog.Logger,
	apiClient *httpapi.Client,
	store *boltdb.Storage,
	serverURL, token string,
) *Cli {
	return &Cli{
		io:        io,
		logger:    logger,
		apiClient: apiClient,
		store:     store,
		serverURL: serverURL,
		token:     token,
	}
}

// PrintUsage выводит справку по командам
func (c *Cli) PrintUsage() {
	c.io.Println("Turnkeeper Client")
	c.io.Println("")
	c.io.Println("Usage:")
	c.io.Println("  turnkeeper [OPTIONS] COMMAND")
	c.io.Println("")
	c.io.Println("Options:")
	c.io.Println("  --version          Show version information")
	c.io.Println("  --server URL       Server URL (default: http://localhost:8080)")
	c.io.Println("  --db PATH          Path to local database (default: turnkeeper-client.db)")
	c.io.Println("  --client-id ID     Client identity (default: hostname)")
	c.io.Println("  --token TOKEN      Connection token (or TURNKEEPER_TOKEN env var)")
	c.io.Println("")
	c.io.Println("Commands:")
	c.io.Println("  new-game                  Create a new game on the server")
	c.io.Println("  play <game-id>            Connect and play interactively")
	c.io.Println("  log <game-id>             Show the local log replica")
	c.io.Println("  ruleset show <game-id>    Show the active ruleset")
	c.io.Println("  ruleset set <game-id> <file>  Activate a ruleset from file")
	c.io.Println("  token <client-id>         Mint a connection token")
	c.io.Println("  status                    Check server health")
}

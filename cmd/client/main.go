package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	httpapi "github.com/iudanet/turnkeeper/internal/client/api"
	"github.com/iudanet/turnkeeper/internal/client/cli"
	"github.com/iudanet/turnkeeper/internal/client/iocli"
	"github.com/iudanet/turnkeeper/internal/client/storage/boltdb"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "http://localhost:8080", "Server URL")
	dbPath := flag.String("db", "turnkeeper-client.db", "Path to local database")
	clientID := flag.String("client-id", defaultClientID(), "Client identity")
	token := flag.String("token", os.Getenv("TURNKEEPER_TOKEN"), "Connection token")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "TTL for minted tokens")

	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	stdio := iocli.NewStdio()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	// Получаем команду
	args := flag.Args()

	// Открываем BoltDB storage
	ctx := context.Background()
	boltStorage, err := boltdb.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := boltStorage.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	apiClient := httpapi.NewClient(*serverURL, *token)
	c := cli.New(stdio, logger, apiClient, boltStorage, *serverURL, *token)

	if len(args) == 0 {
		c.PrintUsage()
		os.Exit(1)
	}

	// Выполняем команду
	var cmdErr error
	switch args[0] {
	case "new-game":
		cmdErr = c.RunNewGame(ctx)
	case "play":
		if len(args) < 2 {
			cmdErr = fmt.Errorf("usage: play <game-id>")
			break
		}
		cmdErr = c.RunPlay(ctx, args[1], *clientID)
	case "log":
		if len(args) < 2 {
			cmdErr = fmt.Errorf("usage: log <game-id>")
			break
		}
		cmdErr = c.RunLog(ctx, args[1])
	case "ruleset":
		cmdErr = runRuleset(ctx, c, args[1:])
	case "token":
		if len(args) < 2 {
			cmdErr = fmt.Errorf("usage: token <client-id>")
			break
		}
		cmdErr = c.RunToken(args[1], *tokenTTL)
	case "status":
		cmdErr = c.RunStatus(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		c.PrintUsage()
		os.Exit(1)
	}

	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", cmdErr)
		os.Exit(1)
	}
}

func runRuleset(ctx context.Context, c *cli.Cli, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: ruleset show|set <game-id> [file]")
	}

	switch args[0] {
	case "show":
		if len(args) < 2 {
			return fmt.Errorf("usage: ruleset show <game-id>")
		}
		return c.RunRulesetShow(ctx, args[1])
	case "set":
		if len(args) < 3 {
			return fmt.Errorf("usage: ruleset set <game-id> <file>")
		}
		return c.RunRulesetSet(ctx, args[1], args[2])
	default:
		return fmt.Errorf("unknown ruleset subcommand: %s", args[0])
	}
}

// defaultClientID падает обратно на hostname
func defaultClientID() string {
	host, err := os.Hostname()
	if err != nil {
		return "turnkeeper-client"
	}
	return host
}

func printVersion() {
	fmt.Printf("Turnkeeper Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glassline/configurator/internal/config"
	"github.com/glassline/configurator/internal/logging"
	"github.com/glassline/configurator/internal/repository"
)

// API key management runs through the server binary so operators can mint
// and revoke bearer credentials without writing SQL against bcrypt-hashed
// secrets by hand.

type apiKeyStore interface {
	CreateAPIKey(ctx context.Context, name string) (string, string, error)
	ListAPIKeys(ctx context.Context) ([]repository.APIKeyMeta, error)
	DeleteAPIKey(ctx context.Context, keyID string) error
}

func isAPIKeyCommand(name string) bool {
	switch name {
	case "create-api-key", "list-api-keys", "revoke-api-key":
		return true
	}
	return false
}

func runAPIKeyCLI(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(logging.New(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := runMigrations(pool); err != nil {
		return err
	}

	return runAPIKeyCommand(ctx, repository.NewPostgresRepository(pool), args, os.Stdout)
}

func runAPIKeyCommand(ctx context.Context, store apiKeyStore, args []string, out io.Writer) error {
	switch args[0] {
	case "create-api-key":
		fs := flag.NewFlagSet("create-api-key", flag.ContinueOnError)
		name := fs.String("name", "", "human-readable key name")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if strings.TrimSpace(*name) == "" {
			return errors.New("create-api-key: -name is required")
		}

		id, secret, err := store.CreateAPIKey(ctx, *name)
		if err != nil {
			return fmt.Errorf("create api key: %w", err)
		}
		// The full bearer token prints exactly once; only its hash is stored.
		fmt.Fprintf(out, "%s.%s\n", id, secret)
		return nil

	case "list-api-keys":
		keys, err := store.ListAPIKeys(ctx)
		if err != nil {
			return fmt.Errorf("list api keys: %w", err)
		}
		for _, key := range keys {
			fmt.Fprintf(out, "%s\t%s\t%s\n", key.ID, key.Name, key.CreatedAt.Format(time.RFC3339))
		}
		return nil

	case "revoke-api-key":
		if len(args) != 2 || strings.TrimSpace(args[1]) == "" {
			return errors.New("revoke-api-key: key id argument is required")
		}
		if err := store.DeleteAPIKey(ctx, args[1]); err != nil {
			return fmt.Errorf("revoke api key %s: %w", args[1], err)
		}
		fmt.Fprintf(out, "revoked %s\n", args[1])
		return nil

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

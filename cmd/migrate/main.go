// Package main is the schema and retention CLI for the content pipeline
// database.
//
// Usage:
//
//	migrate [-path DIR] up
//	migrate [-path DIR] down
//	migrate [-path DIR] steps N
//	migrate [-path DIR] version
//	migrate [-path DIR] force V
//	migrate prune [RETENTION]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/content-pipeline-service/internal/checkpoint"
	"github.com/helixir/content-pipeline-service/internal/config"
	"github.com/helixir/content-pipeline-service/internal/database"
	"github.com/helixir/content-pipeline-service/internal/observability"
)

const connectTimeout = 30 * time.Second

var errUsage = errors.New("usage: migrate [-path DIR] up|down|steps N|version|force V|prune [RETENTION]")

// command is one parsed CLI invocation.
type command struct {
	name string
	// n is the step count for steps and the version for force.
	n int
	// retention overrides checkpoint.retention for prune.
	retention time.Duration
	path      string
}

func main() {
	cmd, err := parseCommand(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if err := run(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseCommand(args []string, out io.Writer) (command, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(out)
	path := fs.String("path", "", "override database.migration_path")
	if err := fs.Parse(args); err != nil {
		return command{}, err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return command{}, errUsage
	}
	cmd := command{name: rest[0], path: *path}
	operands := rest[1:]

	switch cmd.name {
	case "up", "down", "version":
		if len(operands) != 0 {
			return command{}, fmt.Errorf("%s takes no arguments", cmd.name)
		}
	case "steps", "force":
		if len(operands) != 1 {
			return command{}, fmt.Errorf("%s needs exactly one integer argument", cmd.name)
		}
		n, err := strconv.Atoi(operands[0])
		if err != nil {
			return command{}, fmt.Errorf("%s: %w", cmd.name, err)
		}
		if cmd.name == "steps" && n == 0 {
			return command{}, fmt.Errorf("steps must be non-zero")
		}
		if cmd.name == "force" && n < 0 {
			return command{}, fmt.Errorf("force version must be non-negative")
		}
		cmd.n = n
	case "prune":
		if len(operands) > 1 {
			return command{}, fmt.Errorf("prune takes at most one duration")
		}
		if len(operands) == 1 {
			d, err := time.ParseDuration(operands[0])
			if err != nil || d <= 0 {
				return command{}, fmt.Errorf("prune retention must be a positive duration such as 720h")
			}
			cmd.retention = d
		}
	default:
		return command{}, fmt.Errorf("unknown command %q: %w", cmd.name, errUsage)
	}
	return cmd, nil
}

func run(cmd command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.NeedsDatabase() {
		return fmt.Errorf("no store uses the postgres backend; nothing to migrate")
	}

	logCfg := observability.DefaultLoggingConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = "console"
	logger := observability.NewLogger(logCfg)
	logger = observability.WithComponent(logger, "migrate")

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if cmd.name == "prune" {
		return prune(db, cfg, cmd.retention, logger)
	}

	dir := cfg.Database.MigrationPath
	if cmd.path != "" {
		dir = cmd.path
	}
	migrator, err := database.NewMigrator(db, dir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	switch cmd.name {
	case "up":
		err = migrator.Up()
	case "down":
		logger.Warn().Msg("rolling back every migration")
		err = migrator.Down()
	case "steps":
		err = migrator.Steps(cmd.n)
	case "force":
		logger.Warn().Int("version", cmd.n).Msg("forcing migration version")
		err = migrator.Force(cmd.n)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", cmd.name, err)
	}
	logVersion(migrator, logger)
	return nil
}

// prune removes checkpoints of runs that finished before the retention window.
func prune(db *database.DB, cfg *config.Config, retention time.Duration, logger zerolog.Logger) error {
	if cfg.Checkpoint.Backend != config.BackendPostgres {
		return fmt.Errorf("prune needs the postgres checkpoint backend, got %q", cfg.Checkpoint.Backend)
	}
	if retention == 0 {
		retention = cfg.Checkpoint.Retention
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	cutoff := time.Now().UTC().Add(-retention)
	n, err := checkpoint.Prune(ctx, checkpoint.NewPgStore(db), cutoff, logger)
	if err != nil {
		return fmt.Errorf("prune checkpoints: %w", err)
	}
	logger.Info().Int64("deleted", n).Dur("retention", retention).Msg("checkpoint prune finished")
	return nil
}

func logVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return
	}
	logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("current migration version")
}

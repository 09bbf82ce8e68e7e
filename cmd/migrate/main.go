package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/joao-fontenele/orderplaced-pipeline/internal/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	flag.Parse()
	if flag.NArg() < 1 {
		logger.Error("usage: migrate <up|down|drop|version>")
		os.Exit(1)
	}

	cfg, err := config.LoadMigrate()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(flag.Arg(0), cfg, logger); err != nil {
		logger.Error("migrate failed", "command", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

func run(command string, cfg config.Migrate, logger *slog.Logger) error {
	m, err := migrate.New(cfg.MigrationsPath, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("apply migrations: %w", err)
		}
	case "down":
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("roll back migration: %w", err)
		}
	case "drop":
		if err := m.Drop(); err != nil {
			return fmt.Errorf("drop tables: %w", err)
		}
		logger.Info("all tables dropped")
		return nil
	case "version":
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info("no migrations applied", "command", command)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}

	logger.Info("schema version", "command", command, "version", version, "dirty", dirty)
	return nil
}

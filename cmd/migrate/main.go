package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/openexpense/rules/internal/logger"
)

func main() {
	var databaseURL string
	var migrationsPath string
	var command string

	flag.StringVar(&databaseURL, "database", "", "Database URL (falls back to DATABASE_URL)")
	flag.StringVar(&migrationsPath, "path", "migrations", "Path to migrations directory")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, version, force")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		logger.Fatal("database URL is required: use -database or DATABASE_URL")
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		logger.Fatal("failed to create migration instance", "error", err)
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("failed to run migrations", "error", err)
		}
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("database is up to date")
		} else {
			logger.Info("migrations applied")
		}

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("failed to roll back migrations", "error", err)
		}
		logger.Info("rollback complete")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			logger.Fatal("failed to get version", "error", err)
		}
		logger.Info("current migration version", "version", version, "dirty", dirty)

	case "force":
		if flag.NArg() < 1 {
			logger.Fatal("force requires a version number")
		}
		version, err := strconv.Atoi(flag.Arg(0))
		if err != nil {
			logger.Fatal("invalid version number", "error", err)
		}
		if err := m.Force(version); err != nil {
			logger.Fatal("failed to force version", "error", err)
		}
		logger.Info("forced migration version", "version", version)

	default:
		logger.Fatal("unknown command", "command", command)
	}
}

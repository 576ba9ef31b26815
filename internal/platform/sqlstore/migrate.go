package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

// Migration commands accepted by Migrate.
const (
	MigrateUp      = "up"
	MigrateDown    = "down"
	MigrateStatus  = "status"
	MigrateVersion = "version"
)

func newProvider(db *DB) (*goose.Provider, error) {
	var (
		dialect goose.Dialect
		dir     string
	)
	switch db.Dialect {
	case Postgres:
		dialect, dir = goose.DialectPostgres, "migrations/postgres"
	case SQLite:
		dialect, dir = goose.DialectSQLite3, "migrations/sqlite"
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", db.Dialect)
	}

	fsys, err := fs.Sub(migrationFiles, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return goose.NewProvider(dialect, db.DB, fsys)
}

// Migrate runs a goose command against db using the embedded migrations.
func Migrate(ctx context.Context, db *DB, command string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "migrations", "command", command, "dialect", db.Dialect)

	provider, err := newProvider(db)
	if err != nil {
		return err
	}

	switch command {
	case MigrateUp:
		results, err := provider.Up(ctx)
		for _, r := range results {
			log.Info("applied migration",
				"version", r.Source.Version,
				"path", r.Source.Path,
				"duration_ms", r.Duration.Milliseconds())
		}
		if err != nil {
			return fmt.Errorf("migration command '%s' failed: %w", command, err)
		}
	case MigrateDown:
		r, err := provider.Down(ctx)
		if err != nil {
			return fmt.Errorf("migration command '%s' failed: %w", command, err)
		}
		log.Info("rolled back migration", "version", r.Source.Version)
	case MigrateStatus:
		statuses, err := provider.Status(ctx)
		if err != nil {
			return fmt.Errorf("migration command '%s' failed: %w", command, err)
		}
		for _, s := range statuses {
			log.Info("migration status",
				"version", s.Source.Version,
				"path", s.Source.Path,
				"state", string(s.State))
		}
	case MigrateVersion:
		v, err := provider.GetDBVersion(ctx)
		if err != nil {
			return fmt.Errorf("migration command '%s' failed: %w", command, err)
		}
		log.Info("current migration version", "version", v)
	default:
		return fmt.Errorf("unknown migration command: %s (expected up, down, status or version)", command)
	}
	return nil
}

package sqlstore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testDatabaseURLEnv names a PostgreSQL database the tests may reset.
const testDatabaseURLEnv = "ADAT_TEST_DATABASE_URL"

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openSQLite(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, SQLite, filepath.Join(t.TempDir(), "adat.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db, MigrateUp, testLogger()))
	return db
}

func openPostgres(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv(testDatabaseURLEnv)
	if url == "" {
		return nil
	}
	ctx := context.Background()
	db, err := Open(ctx, Postgres, url, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db, MigrateUp, testLogger()))
	_, err = db.ExecContext(ctx, `TRUNCATE tasks, tool_results, sessions`)
	require.NoError(t, err)
	return db
}

// forEachDialect runs fn against SQLite and, when configured, PostgreSQL.
func forEachDialect(t *testing.T, fn func(t *testing.T, db *DB)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		fn(t, openSQLite(t))
	})
	t.Run("postgres", func(t *testing.T) {
		db := openPostgres(t)
		if db == nil {
			t.Skipf("%s not set", testDatabaseURLEnv)
		}
		fn(t, db)
	})
}

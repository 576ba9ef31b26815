package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_Commands(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	log := testLogger()

	require.NoError(t, Migrate(ctx, db, MigrateStatus, log))
	require.NoError(t, Migrate(ctx, db, MigrateVersion, log))

	// Up is idempotent.
	require.NoError(t, Migrate(ctx, db, MigrateUp, log))

	require.NoError(t, Migrate(ctx, db, MigrateDown, log))
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'tasks'`).Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n, "down rolls back the latest migration")

	require.NoError(t, Migrate(ctx, db, MigrateUp, log))
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'tasks'`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Error(t, Migrate(ctx, db, "sideways", log))
}

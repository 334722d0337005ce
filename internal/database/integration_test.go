//go:build integration

package database_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/content-pipeline-service/internal/database"
	"github.com/helixir/content-pipeline-service/internal/database/dbtest"
)

func TestDatabase_Postgres(t *testing.T) {
	db := dbtest.StartPostgres(t)
	ctx := context.Background()

	t.Run("health reports healthy", func(t *testing.T) {
		health := db.Health(ctx)
		assert.True(t, health.Healthy)
		assert.NoError(t, health.Err())
		assert.GreaterOrEqual(t, health.Pool.Max, int32(1))
	})

	t.Run("schema is applied", func(t *testing.T) {
		var n int
		err := db.QueryRow(ctx, `SELECT count(*) FROM information_schema.tables
			WHERE table_name IN ('run_checkpoints', 'content_records')`).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("run_checkpoints carries a version column", func(t *testing.T) {
		var n int
		err := db.QueryRow(ctx, `SELECT count(*) FROM information_schema.columns
			WHERE table_name = 'run_checkpoints' AND column_name = 'version'`).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("migrator reports version and is idempotent", func(t *testing.T) {
		migrator, err := database.NewMigrator(db, dbtest.MigrationsPath(t), zerolog.Nop())
		require.NoError(t, err)
		defer migrator.Close()

		version, dirty, err := migrator.Version()
		require.NoError(t, err)
		assert.False(t, dirty)
		assert.Equal(t, uint(1), version)
		assert.NoError(t, migrator.CheckSchema())

		require.NoError(t, migrator.Up())
	})
}

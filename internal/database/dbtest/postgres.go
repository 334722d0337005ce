//go:build integration

// Package dbtest starts a throwaway PostgreSQL container with the service
// schema applied. It is only compiled with the integration build tag.
package dbtest

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/helixir/content-pipeline-service/internal/database"
)

const image = "postgres:16-alpine"

// MigrationsPath returns the absolute path of the repository's migrations directory.
func MigrationsPath(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot resolve dbtest source path")
	}
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

// StartPostgres runs a PostgreSQL container, applies all migrations and
// returns a connected DB. The container is terminated when the test ends.
func StartPostgres(t *testing.T) *database.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := tcpostgres.Run(ctx, image,
		tcpostgres.WithDatabase("content_pipeline_test"),
		tcpostgres.WithUsername("pipeline"),
		tcpostgres.WithPassword("pipeline"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	db := database.NewFromPool(pool, zerolog.Nop())
	t.Cleanup(db.Close)

	migrator, err := database.NewMigrator(db, MigrationsPath(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("create migrator: %v", err)
	}
	defer migrator.Close()

	if err := migrator.Up(); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	return db
}

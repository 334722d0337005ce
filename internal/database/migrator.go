package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// MigrationsTable records applied schema versions.
const MigrationsTable = "schema_migrations"

// ErrSchemaNotReady is returned by CheckSchema when the schema has never been
// migrated or a migration was interrupted.
var ErrSchemaNotReady = errors.New("database schema not ready")

// Migrator applies the SQL files in a migrations directory over the pool.
type Migrator struct {
	m *migrate.Migrate
	// sqlDB adapts the pgx pool for golang-migrate and must be closed with it.
	sqlDB  *sql.DB
	logger zerolog.Logger
}

// NewMigrator opens a migrator for the directory at path.
func NewMigrator(db *DB, path string, logger zerolog.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if db.pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}
	if path == "" {
		return nil, fmt.Errorf("migrations path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("migrations path: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(db.pool)
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("open migrations: %w", err)
	}

	return &Migrator{m: m, sqlDB: sqlDB, logger: logger.With().Str("migrations", path).Logger()}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	return m.apply("up", m.m.Up())
}

// Down reverts every applied migration. Checkpoints and content records are
// dropped with their tables.
func (m *Migrator) Down() error {
	return m.apply("down", m.m.Down())
}

// Steps applies n migrations forward, or -n backward when n is negative.
// Stepping past either end is a no-op.
func (m *Migrator) Steps(n int) error {
	err := m.m.Steps(n)
	if errors.Is(err, os.ErrNotExist) {
		err = migrate.ErrNoChange
	}
	return m.apply(fmt.Sprintf("steps %d", n), err)
}

func (m *Migrator) apply(op string, err error) error {
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		m.logger.Info().Str("op", op).Msg("schema already current")
		return nil
	case err != nil:
		return fmt.Errorf("migrate %s: %w", op, err)
	}
	v, _, _ := m.Version()
	m.logger.Info().Str("op", op).Uint("version", v).Msg("migrations applied")
	return nil
}

// Version returns the applied version and whether the last migration was
// interrupted. An unmigrated database reports version 0.
func (m *Migrator) Version() (uint, bool, error) {
	v, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// CheckSchema fails with ErrSchemaNotReady unless at least one migration is
// applied and none is left dirty.
func (m *Migrator) CheckSchema() error {
	v, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v == 0 {
		return fmt.Errorf("%w: no migrations applied", ErrSchemaNotReady)
	}
	if dirty {
		return fmt.Errorf("%w: version %d is dirty", ErrSchemaNotReady, v)
	}
	return nil
}

// Force records version as applied without running it, clearing the dirty flag.
func (m *Migrator) Force(version int) error {
	m.logger.Warn().Int("version", version).Msg("forcing schema version")
	return m.m.Force(version)
}

// Close releases the migration source and the sql.DB adapter.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	if m.sqlDB != nil {
		if err := m.sqlDB.Close(); err != nil && dbErr == nil {
			dbErr = err
		}
	}
	return errors.Join(srcErr, dbErr)
}

// Package database provides the PostgreSQL connection pool and schema
// migrations backing the checkpoint and content stores.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/helixir/content-pipeline-service/internal/config"
)

// pingTimeout bounds the ping issued by Health.
const pingTimeout = 5 * time.Second

// DBTX is the query surface shared by *DB, pgx.Tx and pgxmock pools. The
// checkpoint and content stores depend on it rather than on *DB.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

var _ DBTX = (*DB)(nil)

// PoolStats is a point-in-time view of the connection pool.
type PoolStats struct {
	Total    int32 `json:"total_conns"`
	Acquired int32 `json:"acquired_conns"`
	Idle     int32 `json:"idle_conns"`
	Max      int32 `json:"max_conns"`
}

// Saturated reports whether every pooled connection is checked out. Run
// goroutines then queue on checkpoint writes.
func (p PoolStats) Saturated() bool {
	return p.Max > 0 && p.Acquired >= p.Max
}

// HealthStatus is the result of a database health check.
type HealthStatus struct {
	Healthy bool      `json:"healthy"`
	Error   string    `json:"error,omitempty"`
	Pool    PoolStats `json:"pool"`
}

// Err returns the check failure as an error, or nil when healthy.
func (h HealthStatus) Err() error {
	if h.Healthy {
		return nil
	}
	return fmt.Errorf("database unhealthy (%d/%d connections acquired): %s", h.Pool.Acquired, h.Pool.Max, h.Error)
}

// DB wraps the pgx connection pool.
type DB struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New opens a connection pool sized by cfg and pings it once.
func New(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Int32("max_conns", cfg.MaxConns).
		Msg("database connection pool established")

	return &DB{pool: pool, logger: logger}, nil
}

// NewFromPool wraps a pool owned by the caller, such as a test container.
func NewFromPool(pool *pgxpool.Pool, logger zerolog.Logger) *DB {
	return &DB{pool: pool, logger: logger}
}

// Close closes the pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
		db.logger.Info().Msg("database connection pool closed")
	}
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Stats returns the current pool statistics.
func (db *DB) Stats() PoolStats {
	stat := db.pool.Stat()
	return PoolStats{
		Total:    stat.TotalConns(),
		Acquired: stat.AcquiredConns(),
		Idle:     stat.IdleConns(),
		Max:      stat.MaxConns(),
	}
}

// Health pings the database and reports the outcome with pool statistics.
func (db *DB) Health(ctx context.Context) HealthStatus {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	health := HealthStatus{Healthy: true, Pool: db.Stats()}
	if err := db.pool.Ping(pingCtx); err != nil {
		health.Healthy = false
		health.Error = err.Error()
	}
	return health
}

func (db *DB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return db.pool.Exec(ctx, sql, args...)
}

func (db *DB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return db.pool.QueryRow(ctx, sql, args...)
}

func (db *DB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}

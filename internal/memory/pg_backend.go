package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/content-pipeline-service/internal/database"
	"github.com/helixir/content-pipeline-service/internal/domain"
)

const storeName = "memory"

// Compile-time interface verification.
var _ Backend = (*PgBackend)(nil)

// PgBackend is a PostgreSQL implementation of Backend over the
// content_records table.
type PgBackend struct {
	db database.DBTX
}

// NewPgBackend creates a new PostgreSQL memory backend.
func NewPgBackend(db database.DBTX) *PgBackend {
	return &PgBackend{db: db}
}

const recordColumns = `content_hash, text, embedding, metadata, created_at, updated_at`

// Upsert inserts the record or refreshes metadata on an existing hash.
// (xmax = 0) is true only for freshly inserted rows.
func (b *PgBackend) Upsert(ctx context.Context, rec *domain.MemoryRecord) (bool, error) {
	metadata, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO content_records (content_hash, text, embedding, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (content_hash) DO UPDATE SET
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0) AS inserted`

	var inserted bool
	err = b.db.QueryRow(ctx, query,
		rec.ContentHash, rec.Text, rec.Embedding, metadata, rec.CreatedAt, rec.UpdatedAt,
	).Scan(&inserted)
	if err != nil {
		return false, domain.NewStorageError(storeName, "upsert", err)
	}
	return inserted, nil
}

// Get implements Backend.
func (b *PgBackend) Get(ctx context.Context, hash string) (*domain.MemoryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM content_records WHERE content_hash = $1`

	rec, err := scanRecord(b.db.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("memory record", hash)
		}
		return nil, domain.NewStorageError(storeName, "get", err)
	}
	return rec, nil
}

// GetMany implements Backend.
func (b *PgBackend) GetMany(ctx context.Context, hashes []string) ([]*domain.MemoryRecord, error) {
	if len(hashes) == 0 {
		return []*domain.MemoryRecord{}, nil
	}
	query := `SELECT ` + recordColumns + ` FROM content_records WHERE content_hash = ANY($1)`
	return b.queryRecords(ctx, "get_many", query, hashes)
}

// List implements Backend.
func (b *PgBackend) List(ctx context.Context) ([]*domain.MemoryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM content_records ORDER BY created_at DESC`
	return b.queryRecords(ctx, "list", query)
}

func (b *PgBackend) queryRecords(ctx context.Context, op, query string, args ...interface{}) ([]*domain.MemoryRecord, error) {
	rows, err := b.db.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStorageError(storeName, op, err)
	}
	defer rows.Close()

	var out []*domain.MemoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, domain.NewStorageError(storeName, op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError(storeName, op, err)
	}
	return out, nil
}

// Delete implements Backend.
func (b *PgBackend) Delete(ctx context.Context, hash string) error {
	tag, err := b.db.Exec(ctx, `DELETE FROM content_records WHERE content_hash = $1`, hash)
	if err != nil {
		return domain.NewStorageError(storeName, "delete", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("memory record", hash)
	}
	return nil
}

// Stats implements Backend.
func (b *PgBackend) Stats(ctx context.Context) (domain.MemoryStats, error) {
	query := `SELECT COUNT(*), MIN(created_at), MAX(created_at) FROM content_records`

	var (
		count          int64
		oldest, newest *time.Time
	)
	if err := b.db.QueryRow(ctx, query).Scan(&count, &oldest, &newest); err != nil {
		return domain.MemoryStats{}, domain.NewStorageError(storeName, "stats", err)
	}
	return domain.MemoryStats{
		Records:  int(count),
		OldestAt: oldest,
		NewestAt: newest,
	}, nil
}

// DeleteBelowImportance implements Backend. A non-numeric or missing
// importance counts as 0.
func (b *PgBackend) DeleteBelowImportance(ctx context.Context, min float64) ([]string, error) {
	query := `
		DELETE FROM content_records
		WHERE (CASE WHEN jsonb_typeof(metadata->'importance') = 'number'
			THEN (metadata->>'importance')::double precision
			ELSE 0 END) < $1
		RETURNING content_hash`

	rows, err := b.db.Query(ctx, query, min)
	if err != nil {
		return nil, domain.NewStorageError(storeName, "prune", err)
	}
	defer rows.Close()

	var removed []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, domain.NewStorageError(storeName, "prune", err)
		}
		removed = append(removed, hash)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError(storeName, "prune", err)
	}
	return removed, nil
}

func scanRecord(row pgx.Row) (*domain.MemoryRecord, error) {
	var (
		rec      domain.MemoryRecord
		metadata []byte
	)
	err := row.Scan(&rec.ContentHash, &rec.Text, &rec.Embedding, &metadata, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &rec, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, domain.NewValidationError("metadata", err.Error())
	}
	return data, nil
}

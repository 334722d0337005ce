package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helixir/content-pipeline-service/internal/database"
	"github.com/helixir/content-pipeline-service/internal/domain"
)

const storeName = "checkpoint"

// Compile-time interface verification.
var _ Store = (*PgStore)(nil)

// PgStore is a PostgreSQL implementation of Store over the run_checkpoints
// table. The full run is stored as a JSON snapshot, kept verbatim so payload
// bytes survive a round trip; stage, outcome and timestamps are denormalized
// into columns for filtering and retention.
type PgStore struct {
	db database.DBTX
}

// NewPgStore creates a new PostgreSQL checkpoint store.
func NewPgStore(db database.DBTX) *PgStore {
	return &PgStore{db: db}
}

// Save implements Store. The update is skipped when the stored version is
// newer than the snapshot, which surfaces as ErrStaleVersion.
func (s *PgStore) Save(ctx context.Context, runID uuid.UUID, snapshot *domain.WorkflowRun) error {
	if snapshot == nil {
		return domain.NewValidationError("snapshot", "must not be nil")
	}
	if snapshot.ID != runID {
		return domain.NewValidationError("snapshot", "run id does not match")
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	query := `
		INSERT INTO run_checkpoints (run_id, topic, stage, outcome, version, snapshot, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO UPDATE SET
			stage = EXCLUDED.stage,
			outcome = EXCLUDED.outcome,
			version = EXCLUDED.version,
			snapshot = EXCLUDED.snapshot,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
		WHERE run_checkpoints.version <= EXCLUDED.version`

	tag, err := s.db.Exec(ctx, query,
		runID,
		snapshot.Topic,
		string(snapshot.Stage),
		string(snapshot.Outcome),
		snapshot.Version,
		data,
		snapshot.CreatedAt,
		snapshot.UpdatedAt,
		snapshot.CompletedAt,
	)
	if err != nil {
		return domain.NewStorageError(storeName, "save", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleVersion
	}
	return nil
}

// Load implements Store.
func (s *PgStore) Load(ctx context.Context, runID uuid.UUID) (*domain.WorkflowRun, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT snapshot FROM run_checkpoints WHERE run_id = $1`, runID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("checkpoint", runID.String())
		}
		return nil, domain.NewStorageError(storeName, "load", err)
	}
	return decodeSnapshot(data)
}

// Delete implements Store.
func (s *PgStore) Delete(ctx context.Context, runID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM run_checkpoints WHERE run_id = $1`, runID)
	if err != nil {
		return domain.NewStorageError(storeName, "delete", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("checkpoint", runID.String())
	}
	return nil
}

// List implements Store.
func (s *PgStore) List(ctx context.Context, filter domain.RunFilter) ([]*domain.WorkflowRun, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter.Stage != "" {
		conditions = append(conditions, fmt.Sprintf("stage = $%d", argIndex))
		args = append(args, string(filter.Stage))
		argIndex++
	}
	if filter.Outcome != domain.OutcomeNone {
		conditions = append(conditions, fmt.Sprintf("outcome = $%d", argIndex))
		args = append(args, string(filter.Outcome))
		argIndex++
	}
	if filter.Active {
		conditions = append(conditions, "completed_at IS NULL")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := `SELECT snapshot FROM run_checkpoints` + whereClause + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStorageError(storeName, "list", err)
	}
	defer rows.Close()

	var runs []*domain.WorkflowRun
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, domain.NewStorageError(storeName, "list", err)
		}
		run, err := decodeSnapshot(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError(storeName, "list", err)
	}
	return runs, nil
}

// DeleteTerminalBefore implements Store.
func (s *PgStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM run_checkpoints WHERE completed_at IS NOT NULL AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, domain.NewStorageError(storeName, "prune", err)
	}
	return tag.RowsAffected(), nil
}

func decodeSnapshot(data []byte) (*domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &run, nil
}

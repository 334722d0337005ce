package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/content-pipeline-service/internal/domain"
)

func TestPgStore_Save(t *testing.T) {
	run := newRun("postgres tuning", domain.StageWriting)
	run.Version = 4
	run.Results = append(run.Results, domain.StageResult{
		Stage:   domain.StagePending,
		Success: true,
		Payload: json.RawMessage(`{"zeta":1,"alpha":[3,2,1]}`),
	})
	data, err := json.Marshal(run)
	require.NoError(t, err)

	t.Run("upserts snapshot", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`INSERT INTO run_checkpoints`).
			WithArgs(run.ID, "postgres tuning", "writing", "", int64(4), data, run.CreatedAt, run.UpdatedAt, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, NewPgStore(mock).Save(context.Background(), run.ID, run))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`WHERE run_checkpoints.version <= EXCLUDED.version`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		err = NewPgStore(mock).Save(context.Background(), run.ID, run)
		assert.ErrorIs(t, err, ErrStaleVersion)
	})

	t.Run("driver failure is storage unavailable", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`INSERT INTO run_checkpoints`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("connection refused"))

		err = NewPgStore(mock).Save(context.Background(), run.ID, run)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrStorageUnavailable))
	})

	t.Run("mismatched id", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		err = NewPgStore(mock).Save(context.Background(), uuid.New(), run)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgStore_Load(t *testing.T) {
	run := newRun("resume me", domain.StageEditing)
	run.Attempt = 2
	run.Results = append(run.Results, domain.StageResult{
		Stage:   domain.StagePending,
		Success: true,
		Payload: json.RawMessage(`{"zeta":1,"alpha":[3,2,1]}`),
	})
	data, err := json.Marshal(run)
	require.NoError(t, err)

	t.Run("decodes snapshot", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT snapshot FROM run_checkpoints WHERE run_id = \$1`).
			WithArgs(run.ID).
			WillReturnRows(pgxmock.NewRows([]string{"snapshot"}).AddRow(data))

		loaded, err := NewPgStore(mock).Load(context.Background(), run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, loaded.ID)
		assert.Equal(t, domain.StageEditing, loaded.Stage)
		assert.Equal(t, 2, loaded.Attempt)
		require.Len(t, loaded.Results, 1)
		assert.Equal(t, run.Results[0].Payload, loaded.Results[0].Payload)

		reencoded, err := json.Marshal(loaded)
		require.NoError(t, err)
		assert.Equal(t, string(data), string(reencoded))
	})

	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT snapshot FROM run_checkpoints`).
			WithArgs(run.ID).
			WillReturnError(pgx.ErrNoRows)

		_, err = NewPgStore(mock).Load(context.Background(), run.ID)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("corrupt snapshot", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT snapshot FROM run_checkpoints`).
			WithArgs(run.ID).
			WillReturnRows(pgxmock.NewRows([]string{"snapshot"}).AddRow([]byte(`{not json`)))

		_, err = NewPgStore(mock).Load(context.Background(), run.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode checkpoint")
	})
}

func TestPgStore_Delete(t *testing.T) {
	id := uuid.New()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM run_checkpoints WHERE run_id = \$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err = NewPgStore(mock).Delete(context.Background(), id)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPgStore_List(t *testing.T) {
	a := newRun("a", domain.StageEditing)
	b := newRun("b", domain.StageEditing)
	dataA, _ := json.Marshal(a)
	dataB, _ := json.Marshal(b)

	t.Run("builds filtered query", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT snapshot FROM run_checkpoints WHERE stage = \$1 AND outcome = \$2 AND completed_at IS NULL ORDER BY created_at DESC LIMIT \$3`).
			WithArgs("editing", "failure", 10).
			WillReturnRows(pgxmock.NewRows([]string{"snapshot"}).AddRow(dataA).AddRow(dataB))

		runs, err := NewPgStore(mock).List(context.Background(), domain.RunFilter{
			Stage:   domain.StageEditing,
			Outcome: domain.OutcomeFailure,
			Active:  true,
			Limit:   10,
		})
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, a.ID, runs[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unfiltered", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT snapshot FROM run_checkpoints ORDER BY created_at DESC$`).
			WillReturnRows(pgxmock.NewRows([]string{"snapshot"}))

		runs, err := NewPgStore(mock).List(context.Background(), domain.RunFilter{})
		require.NoError(t, err)
		assert.Empty(t, runs)
	})
}

func TestPgStore_DeleteTerminalBefore(t *testing.T) {
	cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM run_checkpoints WHERE completed_at IS NOT NULL AND completed_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := NewPgStore(mock).DeleteTerminalBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

//go:build integration

package checkpoint_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/content-pipeline-service/internal/checkpoint"
	"github.com/helixir/content-pipeline-service/internal/database/dbtest"
	"github.com/helixir/content-pipeline-service/internal/domain"
)

func TestPgStore_RoundTrip(t *testing.T) {
	db := dbtest.StartPostgres(t)
	store := checkpoint.NewPgStore(db)
	ctx := context.Background()

	run := domain.NewWorkflowRun("integration topic", domain.RunConfig{TargetWordCount: 800})
	run.Version = 1
	require.NoError(t, store.Save(ctx, run.ID, run))

	run.Stage = domain.StageResearching
	run.Results = append(run.Results, domain.StageResult{
		Stage:   domain.StagePending,
		Success: true,
		Payload: json.RawMessage(`{"zeta":1,"accepted":true,"alpha":[3,2,1]}`),
	})
	run.Version = 2
	require.NoError(t, store.Save(ctx, run.ID, run))

	stale := run.Clone()
	stale.Version = 1
	assert.ErrorIs(t, store.Save(ctx, run.ID, stale), checkpoint.ErrStaleVersion)

	loaded, err := store.Load(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageResearching, loaded.Stage)
	assert.Equal(t, int64(2), loaded.Version)
	require.Len(t, loaded.Results, 1)
	assert.Equal(t, 800, loaded.Config.TargetWordCount)
	assert.Equal(t, run.Results[0].Payload, loaded.Results[0].Payload)

	saved, err := json.Marshal(run)
	require.NoError(t, err)
	reloaded, err := json.Marshal(loaded)
	require.NoError(t, err)
	assert.Equal(t, string(saved), string(reloaded))

	active, err := store.List(ctx, domain.RunFilter{Active: true})
	require.NoError(t, err)
	require.Len(t, active, 1)

	done := loaded.Clone()
	done.Stage = domain.StageCompleted
	done.Outcome = domain.OutcomeSuccess
	completed := time.Now().UTC().Add(-48 * time.Hour)
	done.CompletedAt = &completed
	done.Version = 3
	require.NoError(t, store.Save(ctx, done.ID, done))

	n, err := store.DeleteTerminalBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.Load(ctx, run.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

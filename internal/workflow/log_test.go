package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/content-pipeline-service/internal/domain"
)

func TestVerifyLog(t *testing.T) {
	tests := []struct {
		name    string
		log     []domain.StageResult
		wantErr string
	}{
		{
			name: "empty log",
			log:  nil,
		},
		{
			name: "full happy path",
			log: []domain.StageResult{
				success(domain.StagePending, 0),
				success(domain.StageResearching, 0),
				success(domain.StageWriting, 0),
				success(domain.StageEditing, 0),
				success(domain.StageMemoryCommit, 0),
			},
		},
		{
			name: "consecutive retries",
			log: []domain.StageResult{
				success(domain.StagePending, 0),
				success(domain.StageResearching, 0),
				failure(domain.StageWriting, 0, domain.StageErrorTransient),
				failure(domain.StageWriting, 1, domain.StageErrorTransient),
				success(domain.StageWriting, 2),
				success(domain.StageEditing, 0),
			},
		},
		{
			name: "does not start at pending",
			log: []domain.StageResult{
				success(domain.StageResearching, 0),
			},
			wantErr: "log starts at researching",
		},
		{
			name: "gap",
			log: []domain.StageResult{
				success(domain.StagePending, 0),
				success(domain.StageWriting, 0),
			},
			wantErr: "out of order",
		},
		{
			name: "advance after failure",
			log: []domain.StageResult{
				success(domain.StagePending, 0),
				failure(domain.StageResearching, 0, domain.StageErrorTransient),
				success(domain.StageWriting, 0),
			},
			wantErr: "entered after failed",
		},
		{
			name: "repeat after success",
			log: []domain.StageResult{
				success(domain.StagePending, 0),
				success(domain.StagePending, 1),
			},
			wantErr: "repeated after success",
		},
		{
			name: "attempt skipped",
			log: []domain.StageResult{
				success(domain.StagePending, 0),
				failure(domain.StageResearching, 0, domain.StageErrorTransient),
				success(domain.StageResearching, 2),
			},
			wantErr: "attempt 2 follows attempt 0",
		},
		{
			name: "terminal stage in log",
			log: []domain.StageResult{
				success(domain.StagePending, 0),
				success(domain.StageCompleted, 0),
			},
			wantErr: "cannot appear",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyLog(tt.log)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

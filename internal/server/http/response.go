package httpserver

import (
	"time"

	"github.com/google/uuid"

	"github.com/helixir/content-pipeline-service/internal/domain"
)

// Response types for JSON serialization.

type submitRunResponse struct {
	RunID   string `json:"run_id"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

type runActionResponse struct {
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

type attemptResponse struct {
	Stage    string `json:"stage"`
	Attempt  int    `json:"attempt"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

type runStatusResponse struct {
	RunID           string            `json:"run_id"`
	Topic           string            `json:"topic"`
	Stage           string            `json:"stage"`
	Attempt         int               `json:"attempt"`
	Terminal        bool              `json:"terminal"`
	Outcome         string            `json:"outcome,omitempty"`
	FailedStage     string            `json:"failed_stage,omitempty"`
	LastError       string            `json:"last_error,omitempty"`
	CancelRequested bool              `json:"cancel_requested"`
	History         []attemptResponse `json:"history"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

type listRunsResponse struct {
	Runs       []runStatusResponse `json:"runs"`
	TotalCount int                 `json:"total_count"`
}

type memoryRecordResponse struct {
	ContentHash string         `json:"content_hash"`
	Text        string         `json:"text"`
	Dimension   int            `json:"dimension"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type scoredRecordResponse struct {
	Score  float64              `json:"score"`
	Record memoryRecordResponse `json:"record"`
}

type searchMemoryResponse struct {
	Results []scoredRecordResponse `json:"results"`
}

// Converter functions

func newRunActionResponse(runID uuid.UUID, message string) runActionResponse {
	return runActionResponse{RunID: runID.String(), Message: message}
}

func runStatusToResponse(st domain.RunStatus) runStatusResponse {
	history := make([]attemptResponse, len(st.History))
	for i, h := range st.History {
		history[i] = attemptResponse{
			Stage:    string(h.Stage),
			Attempt:  h.Attempt,
			Success:  h.Success,
			Error:    h.Error,
			Duration: h.Duration.String(),
		}
	}
	return runStatusResponse{
		RunID:           st.RunID.String(),
		Topic:           st.Topic,
		Stage:           string(st.Stage),
		Attempt:         st.Attempt,
		Terminal:        st.Terminal,
		Outcome:         string(st.Outcome),
		FailedStage:     string(st.FailedStage),
		LastError:       st.LastError,
		CancelRequested: st.CancelRequested,
		History:         history,
		CreatedAt:       st.CreatedAt,
		UpdatedAt:       st.UpdatedAt,
		CompletedAt:     st.CompletedAt,
	}
}

// memoryRecordToResponse omits the embedding; clients only need its length.
func memoryRecordToResponse(rec *domain.MemoryRecord) memoryRecordResponse {
	return memoryRecordResponse{
		ContentHash: rec.ContentHash,
		Text:        rec.Text,
		Dimension:   len(rec.Embedding),
		Metadata:    rec.Metadata,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

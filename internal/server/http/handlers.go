package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helixir/content-pipeline-service/internal/domain"
)

// Pagination and validation constants.
const (
	defaultPageSize    = 50
	maxPageSize        = 100
	defaultSearchK     = 5
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

// submitRunRequest is the JSON request body for submitting a run.
type submitRunRequest struct {
	Topic           string `json:"topic" validate:"required,max=1000"`
	TargetWordCount int    `json:"target_word_count,omitempty" validate:"omitempty,min=50,max=20000"`
	WritingStyle    string `json:"writing_style,omitempty" validate:"omitempty,max=64"`
	MaxRetries      *int   `json:"max_retries,omitempty" validate:"omitempty,gte=0,lte=20"`
	// StageTimeout is a Go duration string such as "90s".
	StageTimeout string `json:"stage_timeout,omitempty"`
}

// searchMemoryRequest is the JSON request body for a similarity search.
type searchMemoryRequest struct {
	Embedding []float32 `json:"embedding" validate:"required,min=1"`
	K         int       `json:"k,omitempty" validate:"omitempty,min=1,max=100"`
	MinScore  float64   `json:"min_score" validate:"gte=-1,lte=1"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// submitRun handles POST /runs.
func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var req submitRunRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if !s.validateRequest(w, &req) {
		return
	}

	cfg := domain.RunConfig{
		TargetWordCount: req.TargetWordCount,
		WritingStyle:    strings.TrimSpace(req.WritingStyle),
		MaxRetries:      req.MaxRetries,
	}
	if req.StageTimeout != "" {
		d, err := time.ParseDuration(req.StageTimeout)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "stage_timeout must be a non-negative duration such as \"90s\"")
			return
		}
		cfg.StageTimeout = d
	}

	runID, err := s.runs.Submit(r.Context(), req.Topic, cfg)
	if err != nil {
		s.logger.Error().Err(err).Str("topic", req.Topic).Msg("failed to submit run")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, submitRunResponse{
		RunID:   runID.String(),
		Stage:   string(domain.StagePending),
		Message: "run submitted",
	})
}

// listRuns handles GET /runs.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.RunFilter{Limit: defaultPageSize}
	if v := q.Get("stage"); v != "" {
		stage := domain.Stage(v)
		if !stage.IsValid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown stage: %s", v))
			return
		}
		filter.Stage = stage
	}
	if v := q.Get("outcome"); v != "" {
		outcome := domain.Outcome(v)
		switch outcome {
		case domain.OutcomeSuccess, domain.OutcomeFailure, domain.OutcomeCancelled:
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown outcome: %s", v))
			return
		}
		filter.Outcome = outcome
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "active must be a boolean")
			return
		}
		filter.Active = active
	}
	filter.Limit = parseLimit(q.Get("limit"))

	statuses, err := s.runs.ListRuns(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list runs")
		writeDomainError(w, err)
		return
	}

	resp := listRunsResponse{
		Runs:       make([]runStatusResponse, len(statuses)),
		TotalCount: len(statuses),
	}
	for i, st := range statuses {
		resp.Runs[i] = runStatusToResponse(st)
	}
	writeJSON(w, http.StatusOK, resp)
}

// getRun handles GET /runs/{runID}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	st, err := s.runs.GetStatus(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runStatusToResponse(st))
}

// cancelRun handles POST /runs/{runID}/cancel. Cancellation is cooperative:
// the run stops at its next stage boundary.
func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	if err := s.runs.Cancel(r.Context(), runID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newRunActionResponse(runID, "cancellation requested"))
}

// resumeRun handles POST /runs/{runID}/resume.
func (s *Server) resumeRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	if err := s.runs.Resume(r.Context(), runID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newRunActionResponse(runID, "run resumed"))
}

// memoryStats handles GET /memory/stats.
func (s *Server) memoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.memory.Stats(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read memory stats")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// getMemory handles GET /memory/{hash}.
func (s *Server) getMemory(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.parseHash(w, chi.URLParam(r, "hash"))
	if !ok {
		return
	}

	rec, err := s.memory.Get(r.Context(), hash)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memoryRecordToResponse(rec))
}

// deleteMemory handles DELETE /memory/{hash}.
func (s *Server) deleteMemory(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.parseHash(w, chi.URLParam(r, "hash"))
	if !ok {
		return
	}

	if err := s.memory.Delete(r.Context(), hash); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// searchMemory handles POST /memory/search.
func (s *Server) searchMemory(w http.ResponseWriter, r *http.Request) {
	var req searchMemoryRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if !s.validateRequest(w, &req) {
		return
	}
	if req.K == 0 {
		req.K = defaultSearchK
	}

	hits, err := s.memory.SearchSimilar(r.Context(), req.Embedding, req.K, req.MinScore)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := searchMemoryResponse{Results: make([]scoredRecordResponse, len(hits))}
	for i, h := range hits {
		resp.Results[i] = scoredRecordResponse{Score: h.Score, Record: memoryRecordToResponse(h.Record)}
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeBody reads a size-limited JSON body into dst, writing a 400 response
// on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

// validateRequest runs struct validation, writing a 400 response describing
// the first failing field.
func (s *Server) validateRequest(w http.ResponseWriter, req interface{}) bool {
	err := s.validate.Struct(req)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg := fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s failed %s=%s validation", fe.Field(), fe.Tag(), fe.Param())
		}
		writeError(w, http.StatusBadRequest, msg)
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid request")
	return false
}

// parseHash validates a content hash path parameter.
func (s *Server) parseHash(w http.ResponseWriter, hash string) (string, bool) {
	hash = strings.ToLower(hash)
	if err := s.validate.Var(hash, "len=64,hexadecimal"); err != nil {
		writeError(w, http.StatusBadRequest, "hash must be a hex SHA-256 digest")
		return "", false
	}
	return hash, true
}

// writeDomainError maps domain errors to appropriate HTTP status codes and
// writes a JSON error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrDimensionMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "run is already executing")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "run has already finished")
	case errors.Is(err, domain.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "service is shutting down")
	case errors.Is(err, domain.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUID parses a UUID from a string, writing a 400 error response if invalid.
// The parse error details are not included to avoid echoing potentially malicious input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// parseLimit applies default and maximum bounds to the limit query parameter.
func parseLimit(v string) int {
	limit := defaultPageSize
	if v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return limit
}

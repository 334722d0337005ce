package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the content pipeline service.
// Metrics are organized by subsystem: runs, stages, checkpoints, memory,
// LLM providers and HTTP. All collectors are registered via promauto with the
// default Prometheus registry.
//
// Record methods are safe to call on a nil *Metrics; they do nothing.
type Metrics struct {
	// RunsStarted counts runs submitted or resumed.
	RunsStarted prometheus.Counter

	// RunsFinished counts terminal runs, labeled by outcome.
	RunsFinished *prometheus.CounterVec

	// RunsInFlight tracks runs currently executing.
	RunsInFlight prometheus.Gauge

	// RunDuration observes end-to-end run duration in seconds.
	RunDuration prometheus.Histogram

	// StageAttempts counts stage attempts, labeled by stage and result.
	StageAttempts *prometheus.CounterVec

	// StageDuration observes stage attempt duration in seconds, labeled by stage.
	StageDuration *prometheus.HistogramVec

	// CheckpointWrites counts checkpoint writes, labeled by result.
	CheckpointWrites *prometheus.CounterVec

	// StorageRetries counts backoff retries against a store, labeled by store.
	StorageRetries *prometheus.CounterVec

	// MemoryPuts counts content store writes, labeled by result (created, refreshed).
	MemoryPuts *prometheus.CounterVec

	// MemorySearches counts similarity searches.
	MemorySearches prometheus.Counter

	// MemorySearchDuration observes similarity search duration in seconds.
	MemorySearchDuration prometheus.Histogram

	// LLMRequestsTotal counts LLM API requests, labeled by operation and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM API requests, labeled by operation, model, and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds, labeled by operation and model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts tokens consumed by LLM operations, labeled by operation, model, and token type.
	LLMTokensUsed *prometheus.CounterVec

	// HTTPRequests counts HTTP requests, labeled by method, route and status.
	HTTPRequests *prometheus.CounterVec

	// EventsPublished counts lifecycle events, labeled by event type and result.
	EventsPublished *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Runs
		RunsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of pipeline runs started or resumed",
		}),
		RunsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of pipeline runs that reached a terminal stage",
		}, []string{"outcome"}),
		RunsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Number of pipeline runs currently executing",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}),

		// Stages
		StageAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_attempts_total",
			Help:      "Total number of stage attempts by stage and result",
		}, []string{"stage", "result"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of stage attempts in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage"}),

		// Checkpoints
		CheckpointWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_writes_total",
			Help:      "Total number of checkpoint writes by result",
		}, []string{"result"}),
		StorageRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_retries_total",
			Help:      "Total number of storage retries by store",
		}, []string{"store"}),

		// Memory
		MemoryPuts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_puts_total",
			Help:      "Total number of content store writes by result",
		}, []string{"result"}),
		MemorySearches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_searches_total",
			Help:      "Total number of similarity searches",
		}),
		MemorySearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_search_duration_seconds",
			Help:      "Duration of similarity searches in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		// LLM
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		}, []string{"operation", "model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM requests",
		}, []string{"operation", "model", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"operation", "model"}),
		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used by LLM operations",
		}, []string{"operation", "model", "token_type"}),

		// Transport
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of lifecycle events published",
		}, []string{"event_type", "result"}),
	}
}

// RecordRunStarted records that a run started executing.
func (m *Metrics) RecordRunStarted() {
	if m == nil {
		return
	}
	m.RunsStarted.Inc()
	m.RunsInFlight.Inc()
}

// RecordRunFinished records a terminal run.
func (m *Metrics) RecordRunFinished(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RunsFinished.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunStopped records that a run goroutine exited, terminal or not.
func (m *Metrics) RecordRunStopped() {
	if m == nil {
		return
	}
	m.RunsInFlight.Dec()
}

// RecordStageAttempt records a single stage attempt.
func (m *Metrics) RecordStageAttempt(stage, result string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.StageAttempts.WithLabelValues(stage, result).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordCheckpointWrite records a checkpoint write result ("ok" or "error").
func (m *Metrics) RecordCheckpointWrite(result string) {
	if m == nil {
		return
	}
	m.CheckpointWrites.WithLabelValues(result).Inc()
}

// RecordStorageRetry records a backoff retry against a store.
func (m *Metrics) RecordStorageRetry(store string) {
	if m == nil {
		return
	}
	m.StorageRetries.WithLabelValues(store).Inc()
}

// RecordMemoryPut records a content store write ("created" or "refreshed").
func (m *Metrics) RecordMemoryPut(result string) {
	if m == nil {
		return
	}
	m.MemoryPuts.WithLabelValues(result).Inc()
}

// RecordMemorySearch records a similarity search.
func (m *Metrics) RecordMemorySearch(durationSeconds float64) {
	if m == nil {
		return
	}
	m.MemorySearches.Inc()
	m.MemorySearchDuration.Observe(durationSeconds)
}

// RecordLLMRequest records an LLM request.
func (m *Metrics) RecordLLMRequest(operation, model string, durationSeconds float64, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(operation, model).Inc()
	m.LLMRequestDuration.WithLabelValues(operation, model).Observe(durationSeconds)
	m.LLMTokensUsed.WithLabelValues(operation, model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(operation, model, "output").Add(float64(outputTokens))
}

// RecordLLMRequestFailed records a failed LLM request.
func (m *Metrics) RecordLLMRequestFailed(operation, model, errorType string) {
	if m == nil {
		return
	}
	m.LLMRequestsFailed.WithLabelValues(operation, model, errorType).Inc()
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
}

// RecordEventPublished records a lifecycle event publish attempt.
func (m *Metrics) RecordEventPublished(eventType, result string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType, result).Inc()
}

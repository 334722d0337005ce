// Package observability provides logging and metrics support for the
// content pipeline service.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//
// Attach run and stage identity before logging from pipeline code:
//
//	logger = observability.WithRunContext(logger, runID, topic)
//	logger = observability.WithStageContext(logger, "writing", attempt)
//
// # Metrics
//
//	metrics := observability.NewMetrics("content_pipeline")
//	metrics.RecordStageAttempt("writing", "success", elapsed.Seconds())
//
// # Standard Fields
//
//   - run_id: pipeline run identifier
//   - topic: run topic
//   - stage: pipeline stage
//   - attempt: zero-based attempt within the stage
//   - component: emitting component (orchestrator, memory, http, ...)
//   - request_id: HTTP request identifier
package observability

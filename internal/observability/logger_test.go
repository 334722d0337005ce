package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoggingConfig(t *testing.T) {
	cfg := DefaultLoggingConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestNewLogger(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	t.Run("creates logger with default config", func(t *testing.T) {
		logger := NewLogger(DefaultLoggingConfig())
		assert.NotEqual(t, zerolog.Logger{}, logger)
	})

	t.Run("creates logger with console format on stderr", func(t *testing.T) {
		logger := NewLogger(LoggingConfig{Level: "info", Format: "console", Output: "stderr"})
		assert.NotEqual(t, zerolog.Logger{}, logger)
	})

	t.Run("json output carries service name", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(LoggingConfig{Level: "debug", Format: "json"}, &buf)
		logger.Debug().Msg("hello")

		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
		assert.Equal(t, ServiceName, logEntry["service"])
		assert.Equal(t, "hello", logEntry["message"])
		assert.Equal(t, "debug", logEntry["level"])
	})

	t.Run("level filters lower entries", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)
		logger.Info().Msg("dropped")

		assert.Empty(t, buf.String())
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	return logEntry
}

func TestWithRunContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	runLogger := WithRunContext(logger, "run-123", "quantum computing")
	runLogger.Info().Msg("run started")

	logEntry := decodeEntry(t, &buf)
	assert.Equal(t, "run-123", logEntry["run_id"])
	assert.Equal(t, "quantum computing", logEntry["topic"])
}

func TestWithStageContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	stageLogger := WithStageContext(logger, "editing", 2)
	stageLogger.Info().Msg("stage attempt")

	logEntry := decodeEntry(t, &buf)
	assert.Equal(t, "editing", logEntry["stage"])
	assert.Equal(t, float64(2), logEntry["attempt"])
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	componentLogger := WithComponent(logger, "orchestrator")
	componentLogger.Info().Msg("ready")

	assert.Equal(t, "orchestrator", decodeEntry(t, &buf)["component"])
}

func TestFromContext(t *testing.T) {
	t.Run("copies context fields", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithStage(WithRun(WithRequestID(context.Background(), "req-1"), "run-9"), "research")

		logger := FromContext(ctx, zerolog.New(&buf))
		logger.Info().Msg("stage call")

		logEntry := decodeEntry(t, &buf)
		assert.Equal(t, "req-1", logEntry["request_id"])
		assert.Equal(t, "run-9", logEntry["run_id"])
		assert.Equal(t, "research", logEntry["stage"])
	})

	t.Run("omits absent fields", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithRun(context.Background(), "run-9")

		logger := FromContext(ctx, zerolog.New(&buf))
		logger.Info().Msg("no stage")

		logEntry := decodeEntry(t, &buf)
		assert.Equal(t, "run-9", logEntry["run_id"])
		assert.NotContains(t, logEntry, "stage")
		assert.NotContains(t, logEntry, "request_id")
	})
}

func TestLoggerContextChaining(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	enriched := WithComponent(logger, "orchestrator")
	enriched = WithRunContext(enriched, "run-1", "rust async")
	enriched = WithStageContext(enriched, "writing", 0)
	enriched.Info().Msg("chained context")

	logEntry := decodeEntry(t, &buf)
	assert.Equal(t, "orchestrator", logEntry["component"])
	assert.Equal(t, "run-1", logEntry["run_id"])
	assert.Equal(t, "rust async", logEntry["topic"])
	assert.Equal(t, "writing", logEntry["stage"])
	assert.Equal(t, float64(0), logEntry["attempt"])
}

func TestTemporalLogger(t *testing.T) {
	t.Run("maps sdk keys onto the log schema", func(t *testing.T) {
		var buf bytes.Buffer
		tl := NewTemporalLogger(zerolog.New(&buf))

		tl.Info("activity completed",
			"ActivityType", "ExecuteStage",
			"RunID", "exec-1",
			"Error", errors.New("boom"),
			7, "odd-key",
		)

		logEntry := decodeEntry(t, &buf)
		assert.Equal(t, "temporal-sdk", logEntry["component"])
		assert.Equal(t, "ExecuteStage", logEntry["activity_type"])
		assert.Equal(t, "exec-1", logEntry["execution_id"])
		assert.Nil(t, logEntry["run_id"])
		assert.Equal(t, "boom", logEntry["error"])
		assert.Equal(t, "odd-key", logEntry["7"])
		assert.Equal(t, "activity completed", logEntry["message"])
	})

	t.Run("dangling key", func(t *testing.T) {
		var buf bytes.Buffer
		NewTemporalLogger(zerolog.New(&buf)).Warn("poll failed", "TaskQueue")

		logEntry := decodeEntry(t, &buf)
		assert.Equal(t, "(missing)", logEntry["task_queue"])
	})

	t.Run("with scopes later entries", func(t *testing.T) {
		var buf bytes.Buffer
		scoped := NewTemporalLogger(zerolog.New(&buf)).With("WorkflowID", "content-run-1")
		scoped.Debug("started")

		logEntry := decodeEntry(t, &buf)
		assert.Equal(t, "content-run-1", logEntry["workflow_id"])
		assert.Equal(t, "started", logEntry["message"])
	})
}

package observability

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// temporalFieldNames maps the SDK's key names onto the service's log schema.
// The SDK's RunID is an execution ID and must not shadow the pipeline run_id.
var temporalFieldNames = map[string]string{
	"WorkflowID":   "workflow_id",
	"RunID":        "execution_id",
	"WorkflowType": "workflow_type",
	"ActivityID":   "activity_id",
	"ActivityType": "activity_type",
	"Attempt":      "attempt",
	"TaskQueue":    "task_queue",
	"Namespace":    "namespace",
	"Error":        zerolog.ErrorFieldName,
}

// TemporalLogger routes Temporal SDK logs into zerolog under the
// "temporal-sdk" component.
type TemporalLogger struct {
	logger zerolog.Logger
}

var (
	_ log.Logger     = (*TemporalLogger)(nil)
	_ log.WithLogger = (*TemporalLogger)(nil)
)

// NewTemporalLogger wraps logger for use as client.Options.Logger.
func NewTemporalLogger(logger zerolog.Logger) *TemporalLogger {
	return &TemporalLogger{logger: WithComponent(logger, "temporal-sdk")}
}

func (l *TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug().Fields(temporalFields(keyvals)).Msg(msg)
}

func (l *TemporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info().Fields(temporalFields(keyvals)).Msg(msg)
}

func (l *TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn().Fields(temporalFields(keyvals)).Msg(msg)
}

func (l *TemporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error().Fields(temporalFields(keyvals)).Msg(msg)
}

// With returns a logger that adds keyvals to every entry. The SDK calls it to
// scope loggers to a workflow or activity.
func (l *TemporalLogger) With(keyvals ...interface{}) log.Logger {
	return &TemporalLogger{logger: l.logger.With().Fields(temporalFields(keyvals)).Logger()}
}

func temporalFields(keyvals []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		if renamed, ok := temporalFieldNames[key]; ok {
			key = renamed
		}
		if i+1 == len(keyvals) {
			fields[key] = "(missing)"
			continue
		}
		if err, ok := keyvals[i+1].(error); ok {
			fields[key] = err.Error()
			continue
		}
		fields[key] = keyvals[i+1]
	}
	return fields
}

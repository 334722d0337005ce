package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName is attached to every log line.
const ServiceName = "content-pipeline-service"

// LoggingConfig selects level, encoding and destination of the process logger.
type LoggingConfig struct {
	Level  string // zerolog level name; "warning" is accepted for warn
	Format string // json, or console/pretty for human-readable output
	Output string // stdout or stderr

	// AddSource records file:line on each entry.
	AddSource  bool
	TimeFormat string
}

func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// NewLogger builds the process logger and sets the global level to match.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	out := io.Writer(os.Stdout)
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return newLogger(cfg, out)
}

func newLogger(cfg LoggingConfig, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: zerolog.TimeFieldFormat}
	}

	b := zerolog.New(out).With().Timestamp().Str("service", ServiceName)
	if cfg.AddSource {
		b = b.Caller()
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	return b.Logger().Level(level)
}

// parseLevel maps a configured level name onto zerolog. Unknown and empty
// names fall back to info rather than zerolog's NoLevel.
func parseLevel(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel || level == zerolog.Disabled {
		return zerolog.InfoLevel
	}
	return level
}

// WithRunContext adds run identity fields to a logger.
func WithRunContext(logger zerolog.Logger, runID, topic string) zerolog.Logger {
	return logger.With().Str("run_id", runID).Str("topic", topic).Logger()
}

func WithStageContext(logger zerolog.Logger, stage string, attempt int) zerolog.Logger {
	return logger.With().Str("stage", stage).Int("attempt", attempt).Logger()
}

// WithComponent tags a logger with the emitting component.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// FromContext copies the request, run and stage carried by ctx onto logger.
// Fields absent from ctx are omitted.
func FromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	fields := [...][2]string{
		{"request_id", RequestIDFromContext(ctx)},
		{"run_id", RunIDFromContext(ctx)},
		{"stage", StageFromContext(ctx)},
	}
	b := logger.With()
	added := false
	for _, f := range fields {
		if f[1] != "" {
			b = b.Str(f[0], f[1])
			added = true
		}
	}
	if !added {
		return logger
	}
	return b.Logger()
}

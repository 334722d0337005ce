package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/content-pipeline-service/internal/config"
	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/observability"
)

// messageReader is the subset of *kafka.Reader the listener uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// RunController is the orchestrator surface driven by commands.
type RunController interface {
	Cancel(ctx context.Context, runID uuid.UUID) error
	Resume(ctx context.Context, runID uuid.UUID) error
}

// ListenerConfig holds configuration for the command listener.
type ListenerConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic carries run commands.
	Topic string
	// GroupID is the consumer group ID.
	GroupID string
}

// ListenerConfigFrom maps the kafka configuration section.
func ListenerConfigFrom(cfg config.KafkaConfig) ListenerConfig {
	return ListenerConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.CommandsTopic,
		GroupID: cfg.GroupID,
	}
}

// CommandListener consumes cancel and resume commands from Kafka and applies
// them to the orchestrator.
type CommandListener struct {
	reader     messageReader
	controller RunController
	logger     zerolog.Logger
}

// NewCommandListener creates a listener backed by a kafka.Reader.
func NewCommandListener(cfg ListenerConfig, controller RunController, logger zerolog.Logger) *CommandListener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})
	return newCommandListener(reader, controller, logger)
}

func newCommandListener(reader messageReader, controller RunController, logger zerolog.Logger) *CommandListener {
	return &CommandListener{
		reader:     reader,
		controller: controller,
		logger:     observability.WithComponent(logger, "command_listener"),
	}
}

// Run starts the listener loop. Blocks until ctx is cancelled.
func (l *CommandListener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting command listener")

	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("command listener stopped via context cancellation")
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				l.logger.Info().Msg("command reader closed")
				return nil
			}
			l.logger.Error().Err(err).Msg("failed to read message from Kafka")
			continue
		}

		l.logger.Debug().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received run command")

		if err := l.handle(ctx, msg.Value); err != nil {
			l.logger.Error().Err(err).
				Str("raw_value", string(msg.Value)).
				Msg("failed to handle run command")
		}
	}
}

// handle decodes and applies a single command. Commands that refer to runs
// that are unknown or already finished are logged and dropped.
func (l *CommandListener) handle(ctx context.Context, value []byte) error {
	var cmd domain.RunCommand
	if err := json.Unmarshal(value, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}
	if cmd.RunID == uuid.Nil {
		return fmt.Errorf("command %q has no run_id", cmd.Command)
	}

	var err error
	switch cmd.Command {
	case domain.CommandCancel:
		err = l.controller.Cancel(ctx, cmd.RunID)
	case domain.CommandResume:
		err = l.controller.Resume(ctx, cmd.RunID)
	default:
		return fmt.Errorf("unknown command %q", cmd.Command)
	}

	switch {
	case err == nil:
		l.logger.Info().
			Str("command", cmd.Command).
			Str("run_id", cmd.RunID.String()).
			Msg("applied run command")
		return nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyExists):
		l.logger.Warn().Err(err).
			Str("command", cmd.Command).
			Str("run_id", cmd.RunID.String()).
			Msg("run command ignored")
		return nil
	default:
		return fmt.Errorf("%s run %s: %w", cmd.Command, cmd.RunID, err)
	}
}

// Close closes the Kafka reader.
func (l *CommandListener) Close() error {
	l.logger.Info().Msg("closing command listener")
	return l.reader.Close()
}

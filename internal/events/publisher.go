// Package events connects the orchestrator to Kafka: lifecycle events are
// published to the events topic and cancel/resume commands are consumed from
// the commands topic.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/content-pipeline-service/internal/config"
	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/observability"
)

const (
	// DefaultServiceName is the source recorded on every published event.
	DefaultServiceName = "content-pipeline-service"

	headerEventType = "event_type"
	headerSource    = "source"
	headerRequestID = "request_id"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PublisherConfig configures a KafkaPublisher.
type PublisherConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic receives run lifecycle events.
	Topic string
	// BatchSize is the maximum number of messages per batch.
	BatchSize int
	// BatchTimeout flushes incomplete batches.
	BatchTimeout time.Duration
	// ServiceName is recorded in the source header.
	ServiceName string
}

// PublisherConfigFrom maps the kafka configuration section.
func PublisherConfigFrom(cfg config.KafkaConfig) PublisherConfig {
	return PublisherConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.EventsTopic,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}
}

// KafkaPublisher writes run lifecycle events to Kafka, keyed by run id so
// that the events of one run stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	source  string
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewKafkaPublisher creates a publisher backed by a kafka.Writer.
func NewKafkaPublisher(cfg PublisherConfig, metrics *observability.Metrics, logger zerolog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("events: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("events: topic is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}
	return newKafkaPublisher(writer, cfg.ServiceName, metrics, logger), nil
}

func newKafkaPublisher(writer messageWriter, source string, metrics *observability.Metrics, logger zerolog.Logger) *KafkaPublisher {
	if source == "" {
		source = DefaultServiceName
	}
	return &KafkaPublisher{
		writer:  writer,
		source:  source,
		metrics: metrics,
		logger:  observability.WithComponent(logger, "event_publisher"),
	}
}

// Publish writes event to the events topic.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.RunEvent) error {
	msg, err := p.message(ctx, event)
	if err != nil {
		p.metrics.RecordEventPublished(event.EventType, "error")
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.RecordEventPublished(event.EventType, "error")
		return fmt.Errorf("publish %s: %w", event.EventType, err)
	}

	p.metrics.RecordEventPublished(event.EventType, "success")
	p.logger.Debug().
		Str("event_type", event.EventType).
		Str("run_id", event.RunID.String()).
		Msg("published lifecycle event")
	return nil
}

func (p *KafkaPublisher) message(ctx context.Context, event domain.RunEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s event: %w", event.EventType, err)
	}

	headers := []kafka.Header{
		{Key: headerEventType, Value: []byte(event.EventType)},
		{Key: headerSource, Value: []byte(p.source)},
	}
	if requestID := observability.RequestIDFromContext(ctx); requestID != "" {
		headers = append(headers, kafka.Header{Key: headerRequestID, Value: []byte(requestID)})
	}

	return kafka.Message{
		Key:     []byte(event.RunID.String()),
		Value:   value,
		Headers: headers,
		Time:    event.CreatedAt,
	}, nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.logger.Info().Msg("closing event publisher")
	return p.writer.Close()
}

// LogPublisher writes lifecycle events to the log instead of Kafka. It is used
// when kafka.enabled is false.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: observability.WithComponent(logger, "event_publisher")}
}

// Publish logs event at debug level. It never fails.
func (p *LogPublisher) Publish(_ context.Context, event domain.RunEvent) error {
	p.logger.Debug().
		Str("event_type", event.EventType).
		Str("run_id", event.RunID.String()).
		Str("stage", string(event.Stage)).
		Int("attempt", event.Attempt).
		Msg("run event")
	return nil
}

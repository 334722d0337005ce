package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/helixir/content-pipeline-service/internal/config"
	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/observability"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(PublisherConfig{Topic: "events"}, nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewKafkaPublisher(PublisherConfig{Brokers: []string{"localhost:9092"}}, nil, zerolog.Nop())
	assert.Error(t, err)

	p, err := NewKafkaPublisher(PublisherConfig{Brokers: []string{"localhost:9092"}, Topic: "events"}, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, DefaultServiceName, p.source)
}

func TestConfigFrom(t *testing.T) {
	cfg := config.KafkaConfig{
		Brokers:       []string{"a:9092", "b:9092"},
		EventsTopic:   "events",
		CommandsTopic: "commands",
		GroupID:       "group",
		BatchSize:     10,
		BatchTimeout:  time.Second,
	}

	assert.Equal(t, PublisherConfig{
		Brokers:      cfg.Brokers,
		Topic:        "events",
		BatchSize:    10,
		BatchTimeout: time.Second,
	}, PublisherConfigFrom(cfg))
	assert.Equal(t, ListenerConfig{Brokers: cfg.Brokers, Topic: "commands", GroupID: "group"}, ListenerConfigFrom(cfg))
}

func TestKafkaPublisher_Publish(t *testing.T) {
	metrics := observability.NewMetrics("test_events_publisher")

	run := domain.NewWorkflowRun("Quantum Computing", domain.RunConfig{})
	event := domain.NewRunEvent(domain.EventTypeRunSubmitted, run)

	t.Run("writes keyed message with headers", func(t *testing.T) {
		w := &fakeWriter{}
		p := newKafkaPublisher(w, "", metrics, zerolog.Nop())

		ctx := observability.WithRequestID(context.Background(), "req-1")
		require.NoError(t, p.Publish(ctx, event))

		require.Len(t, w.messages, 1)
		msg := w.messages[0]
		assert.Equal(t, run.ID.String(), string(msg.Key))
		assert.Equal(t, domain.EventTypeRunSubmitted, header(msg, headerEventType))
		assert.Equal(t, DefaultServiceName, header(msg, headerSource))
		assert.Equal(t, "req-1", header(msg, headerRequestID))

		var decoded domain.RunEvent
		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		assert.Equal(t, event.EventID, decoded.EventID)
		assert.Equal(t, "Quantum Computing", decoded.Topic)
		assert.Equal(t, domain.StagePending, decoded.Stage)

		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsPublished.WithLabelValues(domain.EventTypeRunSubmitted, "success")))
	})

	t.Run("omits request id header when absent", func(t *testing.T) {
		w := &fakeWriter{}
		p := newKafkaPublisher(w, "custom", nil, zerolog.Nop())

		require.NoError(t, p.Publish(context.Background(), event))
		assert.Empty(t, header(w.messages[0], headerRequestID))
		assert.Equal(t, "custom", header(w.messages[0], headerSource))
	})

	t.Run("write failure", func(t *testing.T) {
		w := &fakeWriter{err: errors.New("broker down")}
		p := newKafkaPublisher(w, "", metrics, zerolog.Nop())

		err := p.Publish(context.Background(), event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker down")
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsPublished.WithLabelValues(domain.EventTypeRunSubmitted, "error")))
	})

	t.Run("close", func(t *testing.T) {
		w := &fakeWriter{}
		p := newKafkaPublisher(w, "", nil, zerolog.Nop())
		require.NoError(t, p.Close())
		assert.True(t, w.closed)
	})
}

// fakeReader replays queued messages, then blocks until ctx is done.
type fakeReader struct {
	messages chan kafka.Message
	errs     chan error
	closed   bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{messages: make(chan kafka.Message, len(msgs)), errs: make(chan error, 1)}
	for _, m := range msgs {
		r.messages <- m
	}
	return r
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case err := <-r.errs:
		return kafka.Message{}, err
	default:
	}
	select {
	case m := <-r.messages:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type mockController struct {
	mock.Mock
}

func (m *mockController) Cancel(ctx context.Context, runID uuid.UUID) error {
	return m.Called(ctx, runID).Error(0)
}

func (m *mockController) Resume(ctx context.Context, runID uuid.UUID) error {
	return m.Called(ctx, runID).Error(0)
}

func commandMessage(t *testing.T, cmd domain.RunCommand) kafka.Message {
	t.Helper()
	value, err := json.Marshal(cmd)
	require.NoError(t, err)
	return kafka.Message{Value: value}
}

func TestCommandListener_Handle(t *testing.T) {
	ctx := context.Background()
	runID := uuid.New()

	tests := []struct {
		name    string
		value   []byte
		setup   func(m *mockController)
		wantErr string
	}{
		{
			name:  "cancel",
			value: []byte(`{"command":"cancel","run_id":"` + runID.String() + `"}`),
			setup: func(m *mockController) { m.On("Cancel", mock.Anything, runID).Return(nil) },
		},
		{
			name:  "resume",
			value: []byte(`{"command":"resume","run_id":"` + runID.String() + `"}`),
			setup: func(m *mockController) { m.On("Resume", mock.Anything, runID).Return(nil) },
		},
		{
			name:  "unknown run is ignored",
			value: []byte(`{"command":"cancel","run_id":"` + runID.String() + `"}`),
			setup: func(m *mockController) {
				m.On("Cancel", mock.Anything, runID).Return(domain.NewNotFoundError("checkpoint", runID.String()))
			},
		},
		{
			name:  "finished run is ignored",
			value: []byte(`{"command":"resume","run_id":"` + runID.String() + `"}`),
			setup: func(m *mockController) {
				m.On("Resume", mock.Anything, runID).Return(domain.ErrInvalidTransition)
			},
		},
		{
			name:  "storage failure is reported",
			value: []byte(`{"command":"resume","run_id":"` + runID.String() + `"}`),
			setup: func(m *mockController) {
				m.On("Resume", mock.Anything, runID).Return(domain.NewStorageError("checkpoint", "load", errors.New("down")))
			},
			wantErr: "resume run",
		},
		{
			name:    "malformed json",
			value:   []byte(`{not json`),
			wantErr: "unmarshal command",
		},
		{
			name:    "missing run id",
			value:   []byte(`{"command":"cancel"}`),
			wantErr: "has no run_id",
		},
		{
			name:    "unknown command",
			value:   []byte(`{"command":"pause","run_id":"` + runID.String() + `"}`),
			wantErr: `unknown command "pause"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &mockController{}
			if tt.setup != nil {
				tt.setup(ctrl)
			}
			l := newCommandListener(newFakeReader(), ctrl, zerolog.Nop())

			err := l.handle(ctx, tt.value)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			ctrl.AssertExpectations(t)
		})
	}
}

func TestCommandListener_Run(t *testing.T) {
	first, second := uuid.New(), uuid.New()
	reader := newFakeReader(
		commandMessage(t, domain.RunCommand{Command: domain.CommandCancel, RunID: first}),
		kafka.Message{Value: []byte("garbage")},
		commandMessage(t, domain.RunCommand{Command: domain.CommandResume, RunID: second}),
	)

	ctrl := &mockController{}
	ctrl.On("Cancel", mock.Anything, first).Return(nil).Once()
	resumed := make(chan struct{})
	ctrl.On("Resume", mock.Anything, second).Return(nil).Once().Run(func(mock.Arguments) { close(resumed) })

	l := newCommandListener(reader, ctrl, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-resumed:
	case <-time.After(time.Second):
		t.Fatal("resume command was not applied")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
	ctrl.AssertExpectations(t)

	require.NoError(t, l.Close())
	assert.True(t, reader.closed)
}

func TestCommandListener_RunStopsWhenReaderCloses(t *testing.T) {
	reader := newFakeReader()
	reader.errs <- io.EOF

	l := newCommandListener(reader, &mockController{}, zerolog.Nop())
	assert.NoError(t, l.Run(context.Background()))
}

func TestLogPublisher(t *testing.T) {
	var buf syncBuffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	p := NewLogPublisher(logger)

	run := domain.NewWorkflowRun("kelp forests", domain.RunConfig{})
	require.NoError(t, p.Publish(context.Background(), domain.NewRunEvent(domain.EventTypeRunSubmitted, run)))

	out := buf.String()
	assert.Contains(t, out, domain.EventTypeRunSubmitted)
	assert.Contains(t, out, run.ID.String())
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

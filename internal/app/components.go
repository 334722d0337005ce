// Package app assembles the service components shared by the server and the
// Temporal worker from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/content-pipeline-service/internal/checkpoint"
	"github.com/helixir/content-pipeline-service/internal/config"
	"github.com/helixir/content-pipeline-service/internal/database"
	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/events"
	"github.com/helixir/content-pipeline-service/internal/llm"
	"github.com/helixir/content-pipeline-service/internal/memory"
	"github.com/helixir/content-pipeline-service/internal/observability"
	"github.com/helixir/content-pipeline-service/internal/qdrant"
	"github.com/helixir/content-pipeline-service/internal/workers"
)

// Publisher receives run lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event domain.RunEvent) error
}

// Options tunes Build for the calling binary.
type Options struct {
	// RunMigrations applies pending migrations when database.migration_auto_run is set.
	RunMigrations bool
	// VerifySchema fails Build when the schema is unmigrated or dirty. Used by
	// processes that never migrate themselves.
	VerifySchema bool
	Metrics       *observability.Metrics
	Logger        zerolog.Logger
}

// Components holds the constructed stores, adapters and publisher.
type Components struct {
	// DB is nil when neither store is backed by PostgreSQL.
	DB          *database.DB
	Checkpoints checkpoint.Store
	Memory      *memory.Store
	Embedder    llm.Embedder
	Workers     *workers.Registry
	Publisher   Publisher

	closers []func() error
	logger  zerolog.Logger
}

// Build connects the configured backends and assembles the components. On
// error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, opts Options) (_ *Components, err error) {
	c := &Components{logger: opts.Logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if cfg.NeedsDatabase() {
		if err := c.openDatabase(ctx, cfg, opts); err != nil {
			return nil, err
		}
	}

	switch cfg.Checkpoint.Backend {
	case config.BackendPostgres:
		c.Checkpoints = checkpoint.NewPgStore(c.DB)
	default:
		c.Checkpoints = checkpoint.NewMemoryStore()
	}

	if err := c.buildMemory(ctx, cfg, opts); err != nil {
		return nil, err
	}

	completer, embedder, err := NewLLM(cfg)
	if err != nil {
		return nil, err
	}
	c.Embedder = embedder

	registry, err := workers.BuildRegistry(workers.Deps{
		Provider:  cfg.Workers.Provider,
		Completer: completer,
		Embedder:  embedder,
		Memory:    c.Memory,
		Research: workers.ResearchOptions{
			SearchLimit: cfg.Memory.SearchLimit,
			MinScore:    cfg.Memory.SimilarityThreshold,
		},
		Metrics: opts.Metrics,
		Logger:  opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build worker registry: %w", err)
	}
	c.Workers = registry

	if cfg.Kafka.Enabled {
		pub, err := events.NewKafkaPublisher(events.PublisherConfigFrom(cfg.Kafka), opts.Metrics, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("create event publisher: %w", err)
		}
		c.Publisher = pub
		c.closers = append(c.closers, pub.Close)
	} else {
		c.Publisher = events.NewLogPublisher(opts.Logger)
	}

	return c, nil
}

func (c *Components) openDatabase(ctx context.Context, cfg *config.Config, opts Options) error {
	db, err := database.New(ctx, &cfg.Database, opts.Logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	c.DB = db
	c.closers = append(c.closers, func() error {
		db.Close()
		return nil
	})
	opts.Logger.Info().Msg("database connection established")

	migrate := opts.RunMigrations && cfg.Database.MigrationAutoRun
	if !migrate && !opts.VerifySchema {
		return nil
	}
	migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, opts.Logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			opts.Logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()
	if migrate {
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}
	if opts.VerifySchema {
		if err := migrator.CheckSchema(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Components) buildMemory(ctx context.Context, cfg *config.Config, opts Options) error {
	var backend memory.Backend
	switch cfg.Memory.Backend {
	case config.BackendPostgres:
		backend = memory.NewPgBackend(c.DB)
	default:
		backend = memory.NewMemoryBackend()
	}

	var index memory.VectorIndex
	if cfg.Memory.Index == config.IndexQdrant {
		qc, err := qdrant.NewClient(qdrant.Config{
			Address:        cfg.Qdrant.Address,
			APIKey:         cfg.Qdrant.APIKey,
			UseTLS:         cfg.Qdrant.UseTLS,
			CollectionName: cfg.Qdrant.CollectionName,
			VectorSize:     uint64(cfg.Memory.Dimension),
		})
		if err != nil {
			return fmt.Errorf("create qdrant client: %w", err)
		}
		c.closers = append(c.closers, qc.Close)
		if err := qc.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("ensure qdrant collection: %w", err)
		}
		index = qc
		opts.Logger.Info().
			Str("address", cfg.Qdrant.Address).
			Str("collection", cfg.Qdrant.CollectionName).
			Msg("qdrant vector index enabled")
	}

	store, err := memory.NewStore(backend, memory.Options{
		Dimension: cfg.Memory.Dimension,
		Index:     index,
		Metrics:   opts.Metrics,
		Logger:    opts.Logger,
	})
	if err != nil {
		return fmt.Errorf("create memory store: %w", err)
	}
	c.Memory = store
	return nil
}

// NewLLM creates the completer and embedder for the configured worker
// provider. Static workers get a deterministic hash embedder and no completer.
func NewLLM(cfg *config.Config) (llm.Completer, llm.Embedder, error) {
	if cfg.Workers.Provider == config.WorkerProviderStatic {
		return nil, llm.NewHashEmbedder(cfg.Memory.Dimension), nil
	}

	fc := FactoryConfig(cfg)
	completer, err := llm.NewCompleter(fc)
	if err != nil {
		return nil, nil, fmt.Errorf("create LLM completer: %w", err)
	}
	embedder, err := llm.NewEmbedder(fc)
	if err != nil {
		return nil, nil, fmt.Errorf("create embedder: %w", err)
	}
	return completer, embedder, nil
}

// FactoryConfig maps the llm configuration section to llm.FactoryConfig.
func FactoryConfig(cfg *config.Config) llm.FactoryConfig {
	return llm.FactoryConfig{
		Provider:       strings.ToLower(cfg.LLM.Provider),
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        cfg.LLM.Timeout,
		MaxRetries:     cfg.LLM.MaxRetries,
		RateLimitRPS:   cfg.LLM.RateLimitRPS,
		RateLimitBurst: cfg.LLM.RateLimitBurst,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Dimension:      cfg.Memory.Dimension,
		OpenAI: llm.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			Model:   cfg.LLM.OpenAI.Model,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:  cfg.LLM.Anthropic.APIKey,
			Model:   cfg.LLM.Anthropic.Model,
			BaseURL: cfg.LLM.Anthropic.BaseURL,
		},
	}
}

// Ping reports database health. Without a database it always succeeds. A
// saturated pool is logged but still counts as healthy.
func (c *Components) Ping(ctx context.Context) error {
	if c.DB == nil {
		return nil
	}
	health := c.DB.Health(ctx)
	if health.Healthy && health.Pool.Saturated() {
		c.logger.Warn().
			Int32("acquired_conns", health.Pool.Acquired).
			Int32("max_conns", health.Pool.Max).
			Msg("database pool saturated")
	}
	return health.Err()
}

// Close releases everything Build opened, in reverse order.
func (c *Components) Close() {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	if err := errors.Join(errs...); err != nil {
		c.logger.Error().Err(err).Msg("failed to close components")
	}
}

// Package config provides configuration management for the content pipeline service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Storage backend names.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Vector index names.
const (
	IndexNone   = "none"
	IndexQdrant = "qdrant"
)

// Workflow engine names.
const (
	EngineLocal    = "local"
	EngineTemporal = "temporal"
)

// Worker provider names.
const (
	WorkerProviderLLM    = "llm"
	WorkerProviderStatic = "static"
)

// Config holds all configuration for the content pipeline service.
type Config struct {
	// Server contains HTTP/gRPC server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Temporal contains Temporal workflow orchestration settings.
	Temporal TemporalConfig `mapstructure:"temporal"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Workflow contains orchestrator retry, timeout and concurrency settings.
	Workflow WorkflowConfig `mapstructure:"workflow"`
	// Checkpoint contains checkpoint persistence settings.
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	// Memory contains content store settings.
	Memory MemoryConfig `mapstructure:"memory"`
	// Workers selects the worker adapter implementations.
	Workers WorkersConfig `mapstructure:"workers"`
	// LLM contains LLM client settings for the worker adapters.
	LLM LLMConfig `mapstructure:"llm"`
	// Kafka contains Kafka publisher and command listener settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Qdrant contains Qdrant vector index settings.
	Qdrant QdrantConfig `mapstructure:"qdrant"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// GRPCPort is the gRPC health server port (default: 9090).
	GRPCPort int `mapstructure:"grpc_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (loaded from CONTENTPIPE_DATABASE_PASSWORD).
	Password string `mapstructure:"-"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 20).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 2).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
	// StatementCacheCapacity is the size of the prepared statement cache.
	StatementCacheCapacity int `mapstructure:"statement_cache_capacity"`
}

// TemporalConfig holds Temporal workflow configuration.
type TemporalConfig struct {
	// HostPort is the Temporal server address.
	HostPort string `mapstructure:"host_port"`
	// Namespace is the Temporal namespace.
	Namespace string `mapstructure:"namespace"`
	// TaskQueue is the task queue name for content pipeline workflows.
	TaskQueue string `mapstructure:"task_queue"`
	// RunTimeout bounds one execution of a run, resumes excluded.
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// WorkflowConfig holds orchestrator policy.
type WorkflowConfig struct {
	// Engine drives runs in-process (local) or through Temporal (default: local).
	Engine string `mapstructure:"engine"`
	// MaxRetries is the retry budget per stage (default: 3).
	MaxRetries int `mapstructure:"max_retries"`
	// StageTimeout bounds every worker adapter call (default: 60s).
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
	// RetryDelay is the pause before re-dispatching a failed stage (default: 0).
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// MaxConcurrentRuns bounds how many runs execute at once (default: 16).
	MaxConcurrentRuns int `mapstructure:"max_concurrent_runs"`
	// TargetWordCount is the default article length (default: 1500).
	TargetWordCount int `mapstructure:"target_word_count"`
	// WritingStyle is the default writing style (default: informative).
	WritingStyle string `mapstructure:"writing_style"`
	// ResumeOnStartup resumes every non-terminal checkpoint at boot.
	ResumeOnStartup bool `mapstructure:"resume_on_startup"`
	// StorageBackoff configures retries of checkpoint writes.
	StorageBackoff BackoffConfig `mapstructure:"storage_backoff"`
}

// BackoffConfig describes an exponential backoff curve.
type BackoffConfig struct {
	// Initial is the delay before the first retry.
	Initial time.Duration `mapstructure:"initial"`
	// Max caps a single delay.
	Max time.Duration `mapstructure:"max"`
	// Multiplier grows the delay between retries.
	Multiplier float64 `mapstructure:"multiplier"`
	// MaxAttempts is the total number of tries including the first.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// CheckpointConfig holds checkpoint persistence settings.
type CheckpointConfig struct {
	// Backend is memory or postgres (default: postgres).
	Backend string `mapstructure:"backend"`
	// Retention is how long terminal checkpoints are kept (default: 720h).
	Retention time.Duration `mapstructure:"retention"`
	// CleanupInterval is how often expired checkpoints are pruned (0 disables).
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// MemoryConfig holds content store settings.
type MemoryConfig struct {
	// Backend is memory or postgres (default: postgres).
	Backend string `mapstructure:"backend"`
	// Index is the optional vector index: none or qdrant (default: none).
	Index string `mapstructure:"index"`
	// Dimension is the fixed embedding length (default: 1536).
	Dimension int `mapstructure:"dimension"`
	// SimilarityThreshold is the minimum score for prior-knowledge retrieval (default: 0.7).
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	// SearchLimit is the number of prior memories surfaced to research (default: 5).
	SearchLimit int `mapstructure:"search_limit"`
}

// WorkersConfig selects worker adapter implementations.
type WorkersConfig struct {
	// Provider is llm or static (default: llm).
	Provider string `mapstructure:"provider"`
}

// LLMConfig holds LLM client configuration.
type LLMConfig struct {
	// Provider is the LLM provider (openai, anthropic).
	Provider string `mapstructure:"provider"`
	// Timeout is the timeout for LLM API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the maximum number of provider-level retries for transient errors.
	MaxRetries int `mapstructure:"max_retries"`
	// Temperature is the LLM temperature setting.
	Temperature float64 `mapstructure:"temperature"`
	// MaxTokens bounds the completion length.
	MaxTokens int `mapstructure:"max_tokens"`
	// EmbeddingModel is the OpenAI model used for embeddings.
	EmbeddingModel string `mapstructure:"embedding_model"`
	// RateLimitRPS is the requests per second limit across providers.
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"`
	// RateLimitBurst is the burst size for the rate limiter.
	RateLimitBurst int `mapstructure:"rate_limit_burst"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (loaded from CONTENTPIPE_LLM_OPENAI_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// Model is the OpenAI model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the OpenAI API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic-specific settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (loaded from CONTENTPIPE_LLM_ANTHROPIC_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// Model is the Anthropic model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the Anthropic API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// KafkaConfig holds Kafka settings for lifecycle events and control commands.
type KafkaConfig struct {
	// Enabled controls whether Kafka publishing and listening is active.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// EventsTopic receives run lifecycle events.
	EventsTopic string `mapstructure:"events_topic"`
	// CommandsTopic carries cancel/resume commands.
	CommandsTopic string `mapstructure:"commands_topic"`
	// GroupID is the consumer group for the command listener.
	GroupID string `mapstructure:"group_id"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// QdrantConfig holds Qdrant vector index settings.
type QdrantConfig struct {
	// Address is the Qdrant gRPC address.
	Address string `mapstructure:"address"`
	// APIKey is the optional Qdrant API key (loaded from CONTENTPIPE_QDRANT_API_KEY).
	APIKey string `mapstructure:"-"`
	// UseTLS enables TLS for the Qdrant connection.
	UseTLS bool `mapstructure:"use_tls"`
	// CollectionName is the collection holding content embeddings.
	CollectionName string `mapstructure:"collection_name"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	if c.StatementCacheCapacity > 0 {
		params.Set("statement_cache_capacity", fmt.Sprintf("%d", c.StatementCacheCapacity))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// GRPCAddress returns the gRPC server address.
func (c *ServerConfig) GRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

// NeedsDatabase reports whether any store is configured to use PostgreSQL.
func (c *Config) NeedsDatabase() bool {
	return c.Checkpoint.Backend == BackendPostgres || c.Memory.Backend == BackendPostgres
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CONTENTPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/content-pipeline-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secrets use mapstructure:"-" and are read from the environment only.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Database.Password = os.Getenv("CONTENTPIPE_DATABASE_PASSWORD")
	cfg.LLM.OpenAI.APIKey = os.Getenv("CONTENTPIPE_LLM_OPENAI_API_KEY")
	cfg.LLM.Anthropic.APIKey = os.Getenv("CONTENTPIPE_LLM_ANTHROPIC_API_KEY")
	cfg.Qdrant.APIKey = os.Getenv("CONTENTPIPE_QDRANT_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "90s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "contentpipe")
	v.SetDefault("database.name", "content_pipeline_service")
	// Default to "require" for production security. Use CONTENTPIPE_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)
	v.SetDefault("database.statement_cache_capacity", 512)

	// Temporal defaults
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "content-pipeline")
	v.SetDefault("temporal.task_queue", "content-pipeline-tasks")
	v.SetDefault("temporal.run_timeout", "6h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Workflow defaults
	v.SetDefault("workflow.engine", EngineLocal)
	v.SetDefault("workflow.max_retries", 3)
	v.SetDefault("workflow.stage_timeout", "60s")
	v.SetDefault("workflow.retry_delay", "0s")
	v.SetDefault("workflow.max_concurrent_runs", 16)
	v.SetDefault("workflow.target_word_count", 1500)
	v.SetDefault("workflow.writing_style", "informative")
	v.SetDefault("workflow.resume_on_startup", true)
	v.SetDefault("workflow.storage_backoff.initial", "200ms")
	v.SetDefault("workflow.storage_backoff.max", "5s")
	v.SetDefault("workflow.storage_backoff.multiplier", 2.0)
	v.SetDefault("workflow.storage_backoff.max_attempts", 5)

	// Checkpoint defaults
	v.SetDefault("checkpoint.backend", BackendPostgres)
	v.SetDefault("checkpoint.retention", "720h")
	v.SetDefault("checkpoint.cleanup_interval", "1h")

	// Memory defaults
	v.SetDefault("memory.backend", BackendPostgres)
	v.SetDefault("memory.index", IndexNone)
	v.SetDefault("memory.dimension", 1536) // text-embedding-3-small
	v.SetDefault("memory.similarity_threshold", 0.7)
	v.SetDefault("memory.search_limit", 5)

	// Worker defaults
	v.SetDefault("workers.provider", WorkerProviderLLM)

	// LLM defaults
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.timeout", "50s")
	v.SetDefault("llm.max_retries", 1)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 4000)
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.rate_limit_rps", 5.0)
	v.SetDefault("llm.rate_limit_burst", 10)
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.events_topic", "events.content_pipeline.runs")
	v.SetDefault("kafka.commands_topic", "commands.content_pipeline.runs")
	v.SetDefault("kafka.group_id", "content-pipeline-service")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")

	// Qdrant defaults
	v.SetDefault("qdrant.address", "localhost:6334")
	v.SetDefault("qdrant.use_tls", false)
	v.SetDefault("qdrant.collection_name", "content_embeddings")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.Server.GRPCPort)
	}

	// Validate database config only when a store needs it
	if c.NeedsDatabase() {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Database.Port)
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
		}
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate workflow policy
	switch c.Workflow.Engine {
	case EngineLocal, EngineTemporal:
	default:
		return fmt.Errorf("invalid workflow engine: %q", c.Workflow.Engine)
	}
	if c.Workflow.Engine == EngineTemporal && c.Checkpoint.Backend != BackendPostgres {
		return fmt.Errorf("workflow engine temporal requires the postgres checkpoint backend")
	}
	if c.Workflow.MaxRetries < 0 {
		return fmt.Errorf("workflow max_retries must not be negative")
	}
	if c.Workflow.StageTimeout <= 0 {
		return fmt.Errorf("workflow stage_timeout must be positive")
	}
	if c.Workflow.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("workflow max_concurrent_runs must be positive")
	}
	if c.Workflow.StorageBackoff.MaxAttempts <= 0 {
		return fmt.Errorf("workflow storage_backoff.max_attempts must be positive")
	}
	if c.Workflow.StorageBackoff.Multiplier < 1 {
		return fmt.Errorf("workflow storage_backoff.multiplier must be >= 1")
	}

	// Validate backends
	if err := validateBackend("checkpoint", c.Checkpoint.Backend); err != nil {
		return err
	}
	if err := validateBackend("memory", c.Memory.Backend); err != nil {
		return err
	}
	switch c.Memory.Index {
	case IndexNone, IndexQdrant:
	default:
		return fmt.Errorf("invalid memory index: %q", c.Memory.Index)
	}
	if c.Memory.Dimension <= 0 {
		return fmt.Errorf("memory dimension must be positive")
	}
	if c.Memory.SimilarityThreshold < -1 || c.Memory.SimilarityThreshold > 1 {
		return fmt.Errorf("memory similarity_threshold must be between -1 and 1")
	}
	if c.Memory.Index == IndexQdrant && c.Qdrant.Address == "" {
		return fmt.Errorf("qdrant address is required when memory index is qdrant")
	}

	// Validate Kafka
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}

	// Validate that the configured LLM provider has its required API key set.
	switch c.Workers.Provider {
	case WorkerProviderStatic:
	case WorkerProviderLLM:
		switch strings.ToLower(c.LLM.Provider) {
		case "openai":
			if c.LLM.OpenAI.APIKey == "" {
				return fmt.Errorf("LLM provider %q requires CONTENTPIPE_LLM_OPENAI_API_KEY to be set", c.LLM.Provider)
			}
		case "anthropic":
			if c.LLM.Anthropic.APIKey == "" {
				return fmt.Errorf("LLM provider %q requires CONTENTPIPE_LLM_ANTHROPIC_API_KEY to be set", c.LLM.Provider)
			}
			// Embeddings always come from OpenAI.
			if c.LLM.OpenAI.APIKey == "" {
				return fmt.Errorf("embeddings require CONTENTPIPE_LLM_OPENAI_API_KEY to be set")
			}
		default:
			return fmt.Errorf("unsupported LLM provider: %q", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("invalid workers provider: %q", c.Workers.Provider)
	}

	return nil
}

func validateBackend(name, backend string) error {
	switch backend {
	case BackendMemory, BackendPostgres:
		return nil
	default:
		return fmt.Errorf("invalid %s backend: %q", name, backend)
	}
}

// Package main provides the entry point for the content pipeline service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/content-pipeline-service/internal/app"
	"github.com/helixir/content-pipeline-service/internal/checkpoint"
	"github.com/helixir/content-pipeline-service/internal/config"
	"github.com/helixir/content-pipeline-service/internal/events"
	"github.com/helixir/content-pipeline-service/internal/observability"
	"github.com/helixir/content-pipeline-service/internal/orchestrator"
	"github.com/helixir/content-pipeline-service/internal/server/grpchealth"
	httpserver "github.com/helixir/content-pipeline-service/internal/server/http"
	"github.com/helixir/content-pipeline-service/internal/temporal"
	"github.com/helixir/content-pipeline-service/internal/temporal/workflows"
)

// metricsNamespace prefixes every Prometheus series exported by the service.
const metricsNamespace = "content_pipeline"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// engine is the run control surface plus its lifecycle hooks.
type engine struct {
	runs httpserver.RunService
	// orch is set when runs execute in-process.
	orch *orchestrator.Orchestrator
	// pipeline is set when runs execute on Temporal.
	pipeline *temporal.PipelineClient
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = observability.WithComponent(logger, "server")
	logger.Info().
		Str("engine", cfg.Workflow.Engine).
		Str("workers", cfg.Workers.Provider).
		Msg("content-pipeline-service server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(metricsNamespace)
	}

	comps, err := app.Build(ctx, cfg, app.Options{
		RunMigrations: true,
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer comps.Close()

	eng, err := newEngine(cfg, comps, metrics, logger)
	if err != nil {
		return err
	}
	if eng.pipeline != nil {
		defer eng.pipeline.Close()
	}

	// Kafka command listener for cancel/resume requests.
	var listener *events.CommandListener
	if cfg.Kafka.Enabled && cfg.Kafka.CommandsTopic != "" {
		listener = events.NewCommandListener(events.ListenerConfigFrom(cfg.Kafka), eng.runs, logger)
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsPath:     metricsPath,
	}
	httpSrv := httpserver.NewServer(httpCfg, eng.runs, comps.Memory, comps, metrics, logger)

	healthSrv := grpchealth.New(grpchealth.Config{Address: cfg.Server.GRPCAddress()}, logger)

	// Channel to collect server errors.
	errCh := make(chan error, 3)

	go func() {
		if err := healthSrv.Start(); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	go func() {
		logger.Info().
			Str("address", httpCfg.Address).
			Msg("HTTP REST API server starting")
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if listener != nil {
		go func() {
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("command listener error: %w", err)
			}
		}()
	}

	go healthSrv.Watch(ctx, eng.healthCheck(comps))

	if eng.orch != nil {
		if cfg.Workflow.ResumeOnStartup {
			n, err := eng.orch.RecoverIncomplete(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("failed to recover incomplete runs")
			} else if n > 0 {
				logger.Info().Int("runs", n).Msg("resumed incomplete runs")
			}
		}
		go eng.orch.RunJanitor(ctx, cfg.Checkpoint.Retention, cfg.Checkpoint.CleanupInterval)
	} else {
		// Temporal executions survive restarts on their own; only retention is local.
		go checkpoint.RunJanitor(ctx, comps.Checkpoints, cfg.Checkpoint.Retention, cfg.Checkpoint.CleanupInterval,
			nil, observability.WithComponent(logger, "checkpoint-janitor"))
	}

	logger.Info().
		Str("grpc_address", cfg.Server.GRPCAddress()).
		Str("http_address", httpCfg.Address).
		Msg("content-pipeline-service is ready")

	// Wait for shutdown signal or server error.
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server error")
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down content-pipeline-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	healthSrv.Shutdown(shutdownCtx)

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if listener != nil {
		if err := listener.Close(); err != nil {
			logger.Error().Err(err).Msg("command listener close error")
		}
	}

	// In-flight runs keep their last checkpoint and are resumed on the next start.
	if eng.orch != nil {
		if err := eng.orch.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("runs interrupted by shutdown")
		}
	}

	logger.Info().Msg("content-pipeline-service shutdown complete")
	return runErr
}

// newEngine builds the configured run engine.
func newEngine(cfg *config.Config, comps *app.Components, metrics *observability.Metrics, logger zerolog.Logger) (*engine, error) {
	opts := orchestrator.OptionsFromConfig(cfg.Workflow)

	if cfg.Workflow.Engine == config.EngineTemporal {
		clientCfg := temporal.ClientConfigFrom(cfg.Temporal)
		tc, err := temporal.NewClient(clientCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to temporal: %w", err)
		}
		logger.Info().
			Str("host_port", cfg.Temporal.HostPort).
			Str("namespace", cfg.Temporal.Namespace).
			Msg("temporal client connected")

		pipeline := temporal.NewPipelineClient(tc, clientCfg)
		runs, err := temporal.NewEngine(pipeline, comps.Checkpoints, workflows.ContentPipelineWorkflow, temporal.EngineOptions{
			Defaults:       opts.Defaults,
			StorageBackoff: opts.StorageBackoff,
			Publisher:      comps.Publisher,
			Logger:         logger,
		})
		if err != nil {
			pipeline.Close()
			return nil, err
		}
		return &engine{runs: runs, pipeline: pipeline}, nil
	}

	opts.Publisher = comps.Publisher
	opts.Metrics = metrics
	opts.Logger = logger
	orch, err := orchestrator.New(comps.Workers, comps.Checkpoints, opts)
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}
	return &engine{runs: orch, orch: orch}, nil
}

// healthCheck pings the database and, on Temporal, the Temporal frontend.
func (e *engine) healthCheck(comps *app.Components) grpchealth.Check {
	return func(ctx context.Context) error {
		if err := comps.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if e.pipeline != nil {
			if err := e.pipeline.Health(ctx); err != nil {
				return fmt.Errorf("temporal: %w", err)
			}
		}
		return nil
	}
}

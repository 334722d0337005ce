// Package main provides the entry point for the content pipeline Temporal worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/helixir/content-pipeline-service/internal/app"
	"github.com/helixir/content-pipeline-service/internal/config"
	"github.com/helixir/content-pipeline-service/internal/observability"
	"github.com/helixir/content-pipeline-service/internal/temporal"
	"github.com/helixir/content-pipeline-service/internal/temporal/activities"
	"github.com/helixir/content-pipeline-service/internal/temporal/workflows"
)

// metricsNamespace matches the server so dashboards aggregate both processes.
const metricsNamespace = "content_pipeline"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Checkpoint.Backend != config.BackendPostgres {
		return fmt.Errorf("temporal worker requires the postgres checkpoint backend, got %q", cfg.Checkpoint.Backend)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = observability.WithComponent(logger, "worker")
	logger.Info().Msg("content-pipeline-service worker starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(metricsNamespace)
	}

	// Migrations are owned by the server and cmd/migrate; the worker only
	// refuses to start against an unmigrated schema.
	comps, err := app.Build(ctx, cfg, app.Options{VerifySchema: true, Metrics: metrics, Logger: logger})
	if err != nil {
		return err
	}
	defer comps.Close()

	// Create Temporal client.
	temporalClient, err := temporal.NewClient(temporal.ClientConfigFrom(cfg.Temporal), logger)
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	defer temporalClient.Close()
	logger.Info().
		Str("host_port", cfg.Temporal.HostPort).
		Str("namespace", cfg.Temporal.Namespace).
		Msg("temporal client connected")

	workerCfg := temporal.WorkerConfigFrom(cfg.Temporal, cfg.Workflow)
	manager, err := temporal.NewWorkerManager(temporalClient, workerCfg, temporal.PipelineRegistration{
		Workflow:   workflows.ContentPipelineWorkflow,
		Stage:      activities.NewStageActivities(comps.Workers, metrics),
		Checkpoint: activities.NewCheckpointActivities(comps.Checkpoints, metrics),
		Events:     activities.NewEventActivities(comps.Publisher),
	})
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	logger.Info().
		Str("task_queue", manager.TaskQueue()).
		Int("max_concurrent_activities", workerCfg.MaxConcurrentActivityExecutionSize).
		Msg("worker polling")

	if err := manager.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker: %w", err)
	}

	logger.Info().Msg("content-pipeline-service worker stopped")
	return nil
}

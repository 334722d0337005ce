// Package grpchealth runs the gRPC endpoint used by orchestrators and load
// balancers to check the service. It serves the standard health protocol and
// reflection.
package grpchealth

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/helixir/content-pipeline-service/internal/observability"
)

// ServiceName is the health service name reported alongside the overall "" status.
const ServiceName = "contentpipeline.v1.ContentPipelineService"

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// Config holds gRPC server settings.
type Config struct {
	Address string
	// CheckInterval is how often Watch re-evaluates the check (default: 10s).
	CheckInterval time.Duration
}

// Server wraps a grpc.Server exposing health and reflection.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	address    string
	interval   time.Duration
	logger     zerolog.Logger
}

// New creates the gRPC server. Both the overall and the named service status
// start as NOT_SERVING until SetServing is called.
func New(cfg Config, logger zerolog.Logger) *Server {
	grpcServer := grpc.NewServer(
		grpc.MaxConcurrentStreams(100),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     15 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Minute,
			Time:                  5 * time.Minute,
			Timeout:               1 * time.Minute,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Minute,
			PermitWithoutStream: true,
		}),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	s := &Server{
		grpcServer: grpcServer,
		health:     healthServer,
		address:    cfg.Address,
		interval:   interval,
		logger:     observability.WithComponent(logger, "grpc-health"),
	}
	s.SetServing(false)
	return s
}

// SetServing flips the reported status for both the overall server and ServiceName.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Watch evaluates check every interval and mirrors its result in the health
// status until ctx is done.
func (s *Server) Watch(ctx context.Context, check Check) {
	evaluate := func() {
		checkCtx, cancel := context.WithTimeout(ctx, s.interval)
		defer cancel()
		if err := check(checkCtx); err != nil {
			if ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("health check failed")
				s.SetServing(false)
			}
			return
		}
		s.SetServing(true)
	}

	evaluate()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evaluate()
		}
	}
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen on gRPC address: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("address", ln.Addr().String()).Msg("gRPC server starting")
	return s.grpcServer.Serve(ln)
}

// Shutdown marks the service as not serving and stops gracefully, forcing
// the stop when ctx expires first.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.logger.Info().Msg("gRPC server stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn().Msg("gRPC server forced shutdown due to timeout")
		s.grpcServer.Stop()
	}
}

package api

import (
	"context"
	"fmt"
	"net"
	"time"

	"agendei/internal/config"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const healthPollInterval = 15 * time.Second

// Pinger reports whether the backing repository is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GRPCServer serves the standard health service. The overall status follows
// the repository ping.
type GRPCServer struct {
	cfg      *config.APIConfig
	pinger   Pinger
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	log      zerolog.Logger
}

func NewGRPCServer(cfg *config.APIConfig, pinger Pinger, logger *zerolog.Logger) (*GRPCServer, error) {
	addr := fmt.Sprintf(":%d", cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	return newGRPCServer(cfg, pinger, lis, logger), nil
}

func newGRPCServer(cfg *config.APIConfig, pinger Pinger, lis net.Listener, logger *zerolog.Logger) *GRPCServer {
	auth := NewAuthInterceptor(cfg)
	unary := ChainUnaryInterceptors(
		LoggingUnaryInterceptor(logger),
		auth.Unary(),
	)
	stream := ChainStreamInterceptors(
		LoggingStreamInterceptor(logger),
		auth.Stream(),
	)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(unary), grpc.StreamInterceptor(stream))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	if cfg.GRPC.Reflection {
		reflection.Register(grpcServer)
	}

	return &GRPCServer{
		cfg:      cfg,
		pinger:   pinger,
		server:   grpcServer,
		health:   hs,
		listener: lis,
		log:      componentLogger(logger, "grpc"),
	}
}

func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// RefreshHealth pings the repository once and publishes the result.
func (s *GRPCServer) RefreshHealth(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if s.pinger != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := s.pinger.Ping(pingCtx)
		cancel()
		if err != nil {
			s.log.Warn().Err(err).Msg("Repository ping failed")
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", st)
	return st
}

// WatchHealth refreshes the status until ctx is done.
func (s *GRPCServer) WatchHealth(ctx context.Context) {
	s.RefreshHealth(ctx)

	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RefreshHealth(ctx)
		}
	}
}

func (s *GRPCServer) Serve() error {
	s.log.Info().Str("addr", s.Addr()).Msg("GRPC API listening")
	return s.server.Serve(s.listener)
}

func (s *GRPCServer) Shutdown(ctx context.Context) {
	if s.server == nil {
		return
	}
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
		s.log.Warn().Msg("GRPC graceful shutdown timed out; forcing stop")
		s.server.Stop()
		return
	}
}

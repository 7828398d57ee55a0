package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// serviceName is the health service name of the batch loop.
const serviceName = "analogflow.Scenarios"

// HealthServer serves the standard gRPC health protocol. It reports
// NOT_SERVING until MarkServing is called.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	logger *slog.Logger
}

// NewHealthServer creates a gRPC server with health and reflection
// registered. tlsConfig may be nil.
func NewHealthServer(tlsConfig *tls.Config, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}

	var opts []grpc.ServerOption
	if tlsConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}
	srv := grpc.NewServer(opts...)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	reflection.Register(srv)

	return &HealthServer{server: srv, health: hs, logger: logger}
}

// MarkServing switches every service to SERVING.
func (h *HealthServer) MarkServing() {
	h.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	h.health.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_SERVING)
	h.logger.Info("grpc health serving")
}

// Serve accepts connections on lis until ctx is canceled.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("grpc server listening", "address", lis.Addr().String())
		errCh <- h.server.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("grpc server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	h.health.Shutdown()
	h.server.GracefulStop()
	h.logger.Info("grpc server stopped")
	return nil
}

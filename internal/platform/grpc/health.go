// Package grpc holds the health endpoint the daemon serves and the client
// side used by the admin CLI to probe it.
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Status is a health serving status.
type Status = grpc_health_v1.HealthCheckResponse_ServingStatus

const (
	Serving    = grpc_health_v1.HealthCheckResponse_SERVING
	NotServing = grpc_health_v1.HealthCheckResponse_NOT_SERVING
)

// HealthServer is a gRPC server exposing only the health service.
type HealthServer struct {
	server *gogrpc.Server
	health *health.Server
}

// NewHealthServer builds a server with tracing enabled. The overall ("")
// status starts SERVING.
func NewHealthServer() *HealthServer {
	s := gogrpc.NewServer(gogrpc.StatsHandler(otelgrpc.NewServerHandler()))
	h := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, h)
	h.SetServingStatus("", Serving)
	return &HealthServer{server: s, health: h}
}

// SetStatus reports the status of one named service.
func (s *HealthServer) SetStatus(service string, status Status) {
	s.health.SetServingStatus(service, status)
}

// Serve accepts connections on lis until Stop.
func (s *HealthServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains connections.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

// ClientDialOptions returns the options used to reach the daemon.
func ClientDialOptions() []gogrpc.DialOption {
	return []gogrpc.DialOption{
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// Check asks addr for the status of service once.
func Check(ctx context.Context, addr, service string, timeout time.Duration) (Status, error) {
	conn, err := gogrpc.NewClient(addr, ClientDialOptions()...)
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check %q: %w", service, err)
	}
	return resp.GetStatus(), nil
}

// WaitForHealth polls addr until service reports SERVING or ctx ends.
func WaitForHealth(ctx context.Context, addr, service string, logf func(string, ...any)) error {
	backoff := 200 * time.Millisecond
	for {
		status, err := Check(ctx, addr, service, time.Second)
		if err == nil && status == Serving {
			return nil
		}
		if logf != nil {
			if err != nil {
				logf("waiting for %s health: %v", service, err)
			} else {
				logf("waiting for %s health: status %s", service, status)
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for health: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, time.Second)
	}
}

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"gramflow/internal/infra/db"
)

// GRPCHealthServer exposes pool health over the standard gRPC health protocol
// so orchestrators that speak grpc_health_v1 can probe the worker directly.
type GRPCHealthServer struct {
	addr   string
	logger *slog.Logger
	dbc    *db.DatabaseContext

	server *grpc.Server
	health *health.Server
}

// NewGRPCHealthServer creates a gRPC health service backed by the database context.
func NewGRPCHealthServer(addr string, logger *slog.Logger, dbc *db.DatabaseContext) *GRPCHealthServer {
	return &GRPCHealthServer{
		addr:   addr,
		logger: logger,
		dbc:    dbc,
	}
}

// Start serves the health endpoint until the context is cancelled, refreshing
// the reported status from an active database check every 15 seconds.
func (g *GRPCHealthServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("grpc health listen: %w", err)
	}

	g.server = grpc.NewServer()
	g.health = health.NewServer()
	healthpb.RegisterHealthServer(g.server, g.health)
	g.refresh(ctx)

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.refresh(ctx)
			}
		}
	}()

	errChan := make(chan error, 1)
	go func() {
		g.logger.Info("grpc health server starting", slog.String("addr", g.addr))
		errChan <- g.server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		g.server.GracefulStop()
		return nil
	case err := <-errChan:
		return err
	}
}

func (g *GRPCHealthServer) refresh(ctx context.Context) {
	report := g.dbc.CheckHealth(ctx)
	status := healthpb.HealthCheckResponse_SERVING
	if !report.Healthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus("gramflow.db", status)
}

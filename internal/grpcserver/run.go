package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	gp "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer builds a gRPC server with Prometheus interceptors, the session
// service and the standard health service.
func NewServer(srv SessionService) (*grpc.Server, *health.Server) {
	gs := grpc.NewServer(
		grpc.UnaryInterceptor(gp.UnaryServerInterceptor),
		grpc.StreamInterceptor(gp.StreamServerInterceptor),
	)
	RegisterSessionServer(gs, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	gp.Register(gs)
	return gs, hs
}

// Run serves srv on addr and /metrics on metricsAddr until ctx is done, then
// shuts both down gracefully.
func Run(ctx context.Context, addr, metricsAddr string, srv SessionService, logger *slog.Logger) error {
	gs, hs := NewServer(srv)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	errc := make(chan error, 2)
	go func() {
		logger.Info("serving gRPC", slog.String("addr", addr))
		if err := gs.Serve(lis); err != nil {
			errc <- fmt.Errorf("grpc serve: %w", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving metrics", slog.String("addr", metricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("metrics serve: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	logger.Info("shutting down")
	hs.Shutdown()
	stopped := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		// open watch streams do not end on their own
		gs.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	return err
}

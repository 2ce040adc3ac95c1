package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	ordersv1 "github.com/vladislavdragonenkov/orders/api/orders/v1"
	healthcheck "github.com/vladislavdragonenkov/orders/internal/health"
	grpcsvc "github.com/vladislavdragonenkov/orders/internal/service/grpc"
)

// servedNames — имена сервисов в gRPC health; пустое имя означает сервер целиком.
var servedNames = []string{"", ordersv1.OrderService_ServiceDesc.ServiceName}

func newGRPCServer(deps *Dependencies, logger *log.Entry) (*grpc.Server, *health.Server) {
	metrics := grpcServerMetrics(logger)
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(metrics.UnaryServerInterceptor()))

	ordersv1.RegisterOrderServiceServer(server,
		grpcsvc.NewOrderService(deps.Coordinator, deps.Queries, logger.WithField("layer", "grpc")))

	healthServer := health.NewServer()
	setServing(healthServer, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	metrics.InitializeMetrics(server)
	return server, healthServer
}

// grpcServerMetrics переиспользует уже зарегистрированный коллектор, если Run вызывается повторно в одном процессе.
func grpcServerMetrics(logger *log.Entry) *promgrpc.ServerMetrics {
	metrics := promgrpc.NewServerMetrics()
	err := prometheus.Register(metrics)
	var already prometheus.AlreadyRegisteredError
	switch {
	case err == nil:
	case errors.As(err, &already):
		if existing, ok := already.ExistingCollector.(*promgrpc.ServerMetrics); ok {
			return existing
		}
	default:
		logger.WithError(err).Warn("failed to register grpc metrics")
	}
	return metrics
}

func setServing(srv *health.Server, status healthpb.HealthCheckResponse_ServingStatus) {
	for _, name := range servedNames {
		srv.SetServingStatus(name, status)
	}
}

func markNotServing(srv *health.Server) {
	setServing(srv, healthpb.HealthCheckResponse_NOT_SERVING)
}

// servingStatusSync переводит результат HTTP-проверок в статус gRPC health.
// После отмены ctx статус не трогается: им владеет остановка сервера.
func servingStatusSync(ctx context.Context, srv *health.Server, logger *log.Entry) func(healthcheck.Response) {
	last := healthpb.HealthCheckResponse_SERVING
	return func(resp healthcheck.Response) {
		if ctx.Err() != nil {
			return
		}
		status := healthpb.HealthCheckResponse_SERVING
		if !resp.Ready() {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if status != last {
			logger.WithField("health", resp.Status).Warnf("grpc serving status changed to %s", status)
			last = status
		}
		setServing(srv, status)
	}
}

func stopGRPC(server *grpc.Server, timeout time.Duration, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus и пробы здоровья.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, probes *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	probes.Register(mux)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.WithField("addr", addr).Info("metrics and health probes are listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()
	context.AfterFunc(ctx, func() { shutdownHTTP(srv, logger) })
	return srv
}

func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}

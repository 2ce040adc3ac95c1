package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	ordersv1 "github.com/vladislavdragonenkov/orders/api/orders/v1"
	healthcheck "github.com/vladislavdragonenkov/orders/internal/health"
)

func probesWith(name string, err error, critical bool) *healthcheck.Handler {
	probes := healthcheck.NewHandler("test")
	probes.RegisterChecker(name, healthcheck.NewPingChecker(name, func(context.Context) error { return err }, critical))
	return probes
}

func TestMetricsServer_Endpoints(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := freeAddr(t)
	srv := startMetricsServer(ctx, addr, log.WithField("test", "http"), probesWith("kafka", errors.New("broker down"), false))
	require.NotNil(t, srv)
	waitForHTTP(t, addr)

	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{path: "/metrics", wantCode: http.StatusOK, contains: "go_goroutines"},
		{path: "/healthz", wantCode: http.StatusOK, contains: string(healthcheck.StatusDegraded)},
		{path: "/readyz", wantCode: http.StatusOK, contains: "ready"},
		{path: "/livez", wantCode: http.StatusOK, contains: "ok"},
	}
	for _, tt := range tests {
		code, body := httpGet(t, addr, tt.path)
		assert.Equal(t, tt.wantCode, code, tt.path)
		assert.Contains(t, body, tt.contains, tt.path)
	}
}

func TestMetricsServer_ReadinessFailsOnCriticalDependency(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := freeAddr(t)
	startMetricsServer(ctx, addr, log.WithField("test", "http"), probesWith("postgres", errors.New("connection refused"), true))
	waitForHTTP(t, addr)

	code, body := httpGet(t, addr, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "not ready")
}

func TestMetricsServer_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	addr := freeAddr(t)
	startMetricsServer(ctx, addr, log.WithField("test", "http-shutdown"), healthcheck.NewHandler("test"))
	waitForHTTP(t, addr)

	cancel()
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/livez")
		if err != nil {
			return true
		}
		_ = resp.Body.Close()
		return false
	}, 2*time.Second, 20*time.Millisecond, "server should be stopped after context cancellation")
}

func TestShutdownHTTP_NilServer(_ *testing.T) {
	shutdownHTTP(nil, log.WithField("test", "http-nil"))
}

func TestServingStatusSync(t *testing.T) {
	srv := health.NewServer()
	setServing(srv, healthpb.HealthCheckResponse_SERVING)
	ctx, cancel := context.WithCancel(context.Background())
	sync := servingStatusSync(ctx, srv, log.WithField("test", "health-sync"))

	statusOf := func(name string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: name})
		require.NoError(t, err)
		return resp.GetStatus()
	}
	service := ordersv1.OrderService_ServiceDesc.ServiceName

	sync(healthcheck.Response{Status: healthcheck.StatusUnhealthy})
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, statusOf(""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, statusOf(service))

	sync(healthcheck.Response{Status: healthcheck.StatusDegraded})
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, statusOf(service))

	cancel()
	markNotServing(srv)
	sync(healthcheck.Response{Status: healthcheck.StatusHealthy})
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, statusOf(service), "shutdown status must not be overwritten")
}

func TestStopGRPC_ForcesStopAfterTimeout(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(server, healthSrv)
	served := make(chan error, 1)
	go func() { served <- server.Serve(lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpcInsecure())
	require.NoError(t, err)
	defer conn.Close()

	// Открытый Watch-стрим не даёт GracefulStop завершиться.
	stream, err := healthpb.NewHealthClient(conn).Watch(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	_, err = stream.Recv()
	require.NoError(t, err)

	start := time.Now()
	stopGRPC(server, 50*time.Millisecond, log.WithField("test", "grpc-stop"))
	assert.Less(t, time.Since(start), 2*time.Second)
	require.NoError(t, <-served)
}

func httpGet(t *testing.T, addr, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + addr + path)
	require.NoError(t, err, path)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, path)
	return resp.StatusCode, string(body)
}

func waitForHTTP(t *testing.T, addr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/livez")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)
}

// freeAddr резервирует порт на loopback и сразу освобождает его для сервера под тестом.
func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	return fmt.Sprintf("127.0.0.1:%d", lis.Addr().(*net.TCPAddr).Port)
}

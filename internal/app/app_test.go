package app

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	ordersv1 "github.com/vladislavdragonenkov/orders/api/orders/v1"
	healthcheck "github.com/vladislavdragonenkov/orders/internal/health"
)

func grpcInsecure() grpc.DialOption {
	return grpc.WithTransportCredentials(insecure.NewCredentials())
}

func memoryConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.GRPCAddr = freeAddr(t)
	cfg.MetricsAddr = freeAddr(t)
	cfg.HealthCheckInterval = 20 * time.Millisecond
	return cfg
}

func TestRun_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"

	err := Run(context.Background(), cfg)
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestRun_ListenError(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.GRPCAddr = "256.0.0.1:1"

	err := Run(context.Background(), cfg)
	require.ErrorContains(t, err, "listen grpc")
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	cfg := memoryConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	conn, err := grpc.NewClient(cfg.GRPCAddr, grpcInsecure())
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	require.Eventually(t, func() bool {
		callCtx, callCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer callCancel()
		resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: ordersv1.OrderService_ServiceDesc.ServiceName})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 3*time.Second, 50*time.Millisecond)

	waitForHTTP(t, cfg.MetricsAddr)
	code, body := httpGet(t, cfg.MetricsAddr, "/healthz")
	assert.Equal(t, 200, code)
	assert.Contains(t, body, string(healthcheck.StatusHealthy))

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewDependencies_PostgresHealth(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("ORDERS_POSTGRES_TEST_DSN"))
	if dsn == "" || testing.Short() {
		t.Skip("ORDERS_POSTGRES_TEST_DSN is not set")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	deps, err := NewDependencies(context.Background(), cfg, prometheus.NewRegistry(), testLogger())
	if err != nil {
		t.Skipf("postgres is not available: %v", err)
	}
	defer func() { _ = deps.Close() }()

	report := deps.Health.Run(context.Background())
	require.Contains(t, report.Checks, "storage")
	assert.Equal(t, healthcheck.StatusHealthy, report.Checks["storage"].Status)
}

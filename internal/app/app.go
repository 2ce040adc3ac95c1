// Package app собирает сервис заказов: хранилище, справочник аккаунтов, бизнес-сервисы,
// gRPC API, Kafka и HTTP-эндпоинты метрик и проб.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/vladislavdragonenkov/orders/internal/observability"
	"github.com/vladislavdragonenkov/orders/internal/version"
)

// Run поднимает сервис и блокируется до отмены ctx или падения gRPC-сервера.
// При отмене ctx возвращает ctx.Err() после остановки всех фоновых задач.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	shutdownTracing, err := startTracing(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	deps, err := NewDependencies(ctx, cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to release dependencies")
		}
	}()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	grpcServer, healthServer := newGRPCServer(deps, logger)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, deps.Health)
	defer shutdownHTTP(metricsSrv, logger)

	g, gctx := errgroup.WithContext(ctx)
	runBackground(gctx, g, deps, logger)
	g.Go(func() error {
		deps.Health.Watch(gctx, cfg.HealthCheckInterval, servingStatusSync(gctx, healthServer, logger))
		return nil
	})
	g.Go(func() error {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		markNotServing(healthServer)
		stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// runBackground запускает воркеры outbox и консьюмер fulfillment; все они завершаются по ctx.
func runBackground(ctx context.Context, g *errgroup.Group, deps *Dependencies, logger *log.Entry) {
	if deps.OutboxWorker != nil {
		g.Go(func() error {
			deps.OutboxWorker.Run(ctx)
			return nil
		})
	}
	if deps.OutboxRetention != nil {
		g.Go(func() error {
			deps.OutboxRetention.Run(ctx)
			return nil
		})
	}
	if deps.Consumer != nil {
		if err := deps.Consumer.Start(ctx); err != nil {
			logger.WithError(err).Warn("failed to start fulfillment consumer")
		}
	}
}

func startTracing(ctx context.Context, cfg Config, logger *log.Entry) (func(), error) {
	tracingCfg := cfg.Tracing
	if tracingCfg.Version == "" {
		tracingCfg.Version = version.GetVersion()
	}
	shutdown, err := observability.InitTracing(ctx, tracingCfg, logger.WithField("component", "tracing"))
	if err != nil {
		return nil, err
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracing shutdown with error")
		}
	}, nil
}

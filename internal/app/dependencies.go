package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/clients/accounts"
	"github.com/vladislavdragonenkov/orders/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orders/internal/health"
	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
	"github.com/vladislavdragonenkov/orders/internal/service/orders"
	"github.com/vladislavdragonenkov/orders/internal/service/outbox"
	"github.com/vladislavdragonenkov/orders/internal/service/ownership"
	"github.com/vladislavdragonenkov/orders/internal/storage/memory"
	"github.com/vladislavdragonenkov/orders/internal/storage/postgres"
	"github.com/vladislavdragonenkov/orders/internal/version"
)

// Dependencies содержит все зависимости приложения. Глобального состояния нет:
// всё собирается здесь и передаётся по ссылке.
type Dependencies struct {
	Orders    domain.OrderRepository
	Events    domain.EventRepository
	Outbox    domain.OutboxRepository
	Directory domain.AccountDirectory
	Metrics   *metrics.OrderMetrics

	Coordinator *orders.Coordinator
	Queries     *orders.QueryService

	Producer        *kafka.Producer
	OutboxWorker    *outbox.Worker
	OutboxRetention *outbox.RetentionWorker
	Consumer        *kafka.Consumer

	Health *healthcheck.Handler
	Logger *log.Entry

	closers []func() error
}

type storageDeps struct {
	orders  domain.OrderRepository
	events  domain.EventRepository
	outbox  domain.OutboxRepository
	checker healthcheck.Checker
	closeFn func() error
}

// NewDependencies создаёт и связывает зависимости по конфигурации. При ошибке уже
// открытые ресурсы закрываются.
func NewDependencies(ctx context.Context, cfg Config, registerer prometheus.Registerer, logger *log.Entry) (_ *Dependencies, err error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if err := registerer.Register(version.NewCollector()); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			logger.WithError(err).Warn("build info metric is not registered")
		}
	}

	deps := &Dependencies{
		Metrics: metrics.NewOrderMetricsWithRegisterer(registerer),
		Health:  healthcheck.NewHandler(version.GetVersion()),
		Logger:  logger,
	}
	defer func() {
		if err != nil {
			_ = deps.Close()
		}
	}()

	storage, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.Orders, deps.Events, deps.Outbox = storage.orders, storage.events, storage.outbox
	deps.addCloser(storage.closeFn)
	if storage.checker != nil {
		deps.Health.RegisterChecker("storage", storage.checker)
	}

	directory, err := initDirectory(cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.Directory = directory
	if pinger, ok := directory.(*accounts.HTTPClient); ok {
		deps.Health.RegisterChecker("accounts", healthcheck.NewPingChecker("accounts", pinger.Ping, true))
	}

	queryOptions := []orders.QueryOption{orders.WithListConcurrency(cfg.ListConcurrency)}
	if cfg.KafkaEnabled() {
		queryOptions = append(queryOptions, orders.WithOutbox(deps.Outbox))
	}

	validator := ownership.NewValidator(deps.Directory, deps.Metrics, logger.WithField("component", "ownership"))
	deps.Coordinator = orders.NewCoordinator(deps.Directory, deps.Orders, deps.Metrics, logger.WithField("component", "order-coordinator"))
	deps.Queries = orders.NewQueryService(deps.Orders, deps.Events, validator, deps.Metrics,
		logger.WithField("component", "order-query"), queryOptions...)

	deps.initMessaging(cfg)

	return deps, nil
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (storageDeps, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		logger.Info("using in-memory storage")
		return storageDeps{
			orders: memory.NewOrderRepository(),
			events: memory.NewEventRepository(),
			outbox: memory.NewOutboxRepository(),
		}, nil
	case StorageDriverPostgres:
		pgLogger := logger.WithField("component", "postgres")
		store, err := postgres.Open(ctx, postgres.Config{
			DSN:        cfg.PostgresDSN,
			LogQueries: pgLogger.Logger.IsLevelEnabled(log.DebugLevel),
		}, pgLogger)
		if err != nil {
			return storageDeps{}, fmt.Errorf("open postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return storageDeps{}, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		logger.Info("using postgres storage")
		return storageDeps{
			orders:  postgres.NewOrderRepository(store),
			events:  postgres.NewEventRepository(store),
			outbox:  postgres.NewOutboxRepository(store),
			checker: healthcheck.NewPingChecker("postgres", store.Ping, true),
			closeFn: store.Close,
		}, nil
	default:
		return storageDeps{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initDirectory(cfg Config, logger *log.Entry) (domain.AccountDirectory, error) {
	if cfg.AccountsURL == "" {
		logger.Warn("accounts directory url is not set, using mock directory without accounts")
		return accounts.NewMockDirectory(), nil
	}
	client, err := accounts.NewHTTPClient(accounts.Config{
		BaseURL: cfg.AccountsURL,
		Timeout: cfg.AccountsTimeout,
	}, logger.WithField("component", "accounts-client"))
	if err != nil {
		return nil, fmt.Errorf("init accounts directory: %w", err)
	}
	return client, nil
}

func (d *Dependencies) addCloser(fn func() error) {
	if fn != nil {
		d.closers = append(d.closers, fn)
	}
}

// Close освобождает ресурсы в обратном порядке открытия.
func (d *Dependencies) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders/internal/observability"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса заказов.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// AccountsURL — адрес справочника аккаунтов. Пустой адрес включает заглушку.
	AccountsURL     string
	AccountsTimeout time.Duration

	KafkaBrokers          []string
	KafkaEventsTopic      string
	KafkaFulfillmentTopic string
	KafkaDLQTopic         string
	KafkaConsumerGroup    string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxRetention — сколько хранятся обработанные сообщения outbox; 0 отключает очистку.
	OutboxRetention         time.Duration
	OutboxRetentionInterval time.Duration

	ListConcurrency int
	ShutdownTimeout time.Duration
	// HealthCheckInterval — период синхронизации статуса gRPC health с проверками зависимостей.
	HealthCheckInterval time.Duration

	Tracing observability.TracingConfig
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:                ":50051",
		MetricsAddr:             ":9090",
		StorageDriver:           StorageDriverMemory,
		PostgresAutoMigrate:     true,
		AccountsTimeout:         5 * time.Second,
		KafkaEventsTopic:        kafka.TopicOrderEvents,
		KafkaFulfillmentTopic:   kafka.TopicFulfillment,
		KafkaDLQTopic:           kafka.TopicDeadLetterQueue,
		KafkaConsumerGroup:      "order-service",
		OutboxPollInterval:      time.Second,
		OutboxBatchSize:         100,
		OutboxMaxAttempts:       3,
		OutboxRetryDelay:        100 * time.Millisecond,
		OutboxRetention:         24 * time.Hour,
		OutboxRetentionInterval: 10 * time.Minute,
		ListConcurrency:         8,
		ShutdownTimeout:         5 * time.Second,
		HealthCheckInterval:     10 * time.Second,
		Tracing: observability.TracingConfig{
			ServiceName: "order-service",
			SampleRatio: 1,
		},
	}
}

// KafkaEnabled сообщает, заданы ли брокеры Kafka.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Validate отклоняет противоречивые настройки до старта зависимостей.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.GRPCAddr) == "" {
		errs = append(errs, errors.New("grpc address is required"))
	}
	if strings.TrimSpace(c.MetricsAddr) == "" {
		errs = append(errs, errors.New("metrics address is required"))
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if c.AccountsTimeout < 0 {
		errs = append(errs, errors.New("accounts timeout must be >= 0"))
	}
	if c.ListConcurrency <= 0 {
		errs = append(errs, errors.New("list concurrency must be > 0"))
	}
	if c.HealthCheckInterval <= 0 {
		errs = append(errs, errors.New("health check interval must be > 0"))
	}

	if c.KafkaEnabled() {
		if c.KafkaEventsTopic == "" {
			errs = append(errs, errors.New("kafka events topic is required when brokers are set"))
		}
		if c.KafkaFulfillmentTopic != "" && c.KafkaConsumerGroup == "" {
			errs = append(errs, errors.New("kafka consumer group is required to consume fulfillment topic"))
		}
		if c.OutboxPollInterval <= 0 {
			errs = append(errs, errors.New("outbox poll interval must be > 0"))
		}
		if c.OutboxBatchSize <= 0 {
			errs = append(errs, errors.New("outbox batch size must be > 0"))
		}
		if c.OutboxMaxAttempts <= 0 {
			errs = append(errs, errors.New("outbox max attempts must be > 0"))
		}
		if c.OutboxRetryDelay < 0 {
			errs = append(errs, errors.New("outbox retry delay must be >= 0"))
		}
		if c.OutboxRetention < 0 {
			errs = append(errs, errors.New("outbox retention must be >= 0"))
		}
		if c.OutboxRetention > 0 && c.OutboxRetentionInterval <= 0 {
			errs = append(errs, errors.New("outbox retention interval must be > 0"))
		}
	}

	return errors.Join(errs...)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/app"
	"github.com/vladislavdragonenkov/orders/internal/version"
)

const (
	envGRPCAddr              = "ORDERS_GRPC_ADDR"
	envMetricsAddr           = "ORDERS_METRICS_ADDR"
	envLogLevel              = "ORDERS_LOG_LEVEL"
	envStorageDriver         = "ORDERS_STORAGE_DRIVER"
	envPostgresDSN           = "ORDERS_POSTGRES_DSN"
	envPostgresAutoMigrate   = "ORDERS_POSTGRES_AUTO_MIGRATE"
	envAccountsURL           = "ORDERS_ACCOUNTS_URL"
	envAccountsTimeout       = "ORDERS_ACCOUNTS_TIMEOUT"
	envKafkaBrokers          = "ORDERS_KAFKA_BROKERS"
	envKafkaEventsTopic      = "ORDERS_KAFKA_EVENTS_TOPIC"
	envKafkaFulfillmentTopic = "ORDERS_KAFKA_FULFILLMENT_TOPIC"
	envKafkaDLQTopic         = "ORDERS_KAFKA_DLQ_TOPIC"
	envKafkaConsumerGroup    = "ORDERS_KAFKA_CONSUMER_GROUP"
	envOutboxPollInterval    = "ORDERS_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize       = "ORDERS_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts     = "ORDERS_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay      = "ORDERS_OUTBOX_RETRY_DELAY"
	envOutboxRetention       = "ORDERS_OUTBOX_RETENTION"
	envOutboxRetentionEvery  = "ORDERS_OUTBOX_RETENTION_INTERVAL"
	envListConcurrency       = "ORDERS_LIST_CONCURRENCY"
	envHealthCheckInterval   = "ORDERS_HEALTH_CHECK_INTERVAL"
	envEnvironment           = "ORDERS_ENVIRONMENT"

	envOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envOTLPInsecure = "OTEL_EXPORTER_OTLP_INSECURE"
	envOTelService  = "OTEL_SERVICE_NAME"
	envOTelStdout   = "OTEL_STDOUT"
	envOTelSampler  = "OTEL_TRACES_SAMPLER_ARG"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	raw, ok := lookup(envLogLevel)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	level, err := log.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", envLogLevel, err)
	}
	log.SetLevel(level)
	return nil
}

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректные значения пропускаются с предупреждением, остаётся значение по умолчанию.
func readConfigFromEnv(lookup envLookup) (app.Config, []error) {
	cfg := app.DefaultConfig()
	var warnings []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	positive := func(d time.Duration) bool { return d > 0 }
	nonNegative := func(d time.Duration) bool { return d >= 0 }

	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)

	str(envAccountsURL, &cfg.AccountsURL)
	duration(envAccountsTimeout, &cfg.AccountsTimeout, positive, "must be > 0")

	if v, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(v)
	}
	str(envKafkaEventsTopic, &cfg.KafkaEventsTopic)
	str(envKafkaFulfillmentTopic, &cfg.KafkaFulfillmentTopic)
	str(envKafkaDLQTopic, &cfg.KafkaDLQTopic)
	str(envKafkaConsumerGroup, &cfg.KafkaConsumerGroup)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positive, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize)
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegative, "must be >= 0")
	duration(envOutboxRetention, &cfg.OutboxRetention, nonNegative, "must be >= 0")
	duration(envOutboxRetentionEvery, &cfg.OutboxRetentionInterval, positive, "must be > 0")
	integer(envListConcurrency, &cfg.ListConcurrency)
	duration(envHealthCheckInterval, &cfg.HealthCheckInterval, positive, "must be > 0")

	str(envOTLPEndpoint, &cfg.Tracing.OTLPEndpoint)
	boolean(envOTLPInsecure, &cfg.Tracing.OTLPInsecure)
	boolean(envOTelStdout, &cfg.Tracing.Stdout)
	str(envOTelService, &cfg.Tracing.ServiceName)
	str(envEnvironment, &cfg.Tracing.Environment)
	if v, ok := lookup(envOTelSampler); ok && strings.TrimSpace(v) != "" {
		ratio, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || ratio <= 0 || ratio > 1 {
			warnings = append(warnings, fmt.Errorf("%s: must be in (0, 1]", envOTelSampler))
		} else {
			cfg.Tracing.SampleRatio = ratio
		}
	}

	return cfg, warnings
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

// loadDotEnv подхватывает .env, если он есть. Уже заданные переменные не перезаписываются.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func main() {
	if err := loadDotEnv(); err != nil {
		log.WithError(err).Warn("failed to load .env file")
	}
	if err := setupLogger(os.LookupEnv); err != nil {
		log.WithError(err).Warn("invalid log level, using info")
	}

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.WithError(warning).Warn("invalid config value ignored")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_enabled":  cfg.KafkaEnabled(),
		"version":        version.String(),
	}).Info("запускаем OrderService")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("OrderService остановлен")
}

package app

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orders/internal/health"
	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders/internal/service/orders"
	"github.com/vladislavdragonenkov/orders/internal/service/outbox"
)

// connectKafka возвращает nil, nil, если брокеры не заданы.
func connectKafka(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	producer, err := kafka.NewProducer(brokers, logger.WithField("component", "kafka-producer"))
	if err != nil {
		return nil, fmt.Errorf("connect kafka %v: %w", brokers, err)
	}
	logger.WithField("brokers", brokers).Info("kafka producer connected")
	return producer, nil
}

// initMessaging подключает Kafka. Недоступность брокеров не мешает старту: outbox
// копится в хранилище, а входящие события fulfillment не читаются.
func (d *Dependencies) initMessaging(cfg Config) {
	producer, err := connectKafka(cfg.KafkaBrokers, d.Logger)
	if err != nil {
		d.Logger.WithError(err).Warn("kafka is unavailable, outbox will accumulate")
	}
	if producer == nil {
		return
	}
	d.Producer = producer
	d.addCloser(producer.Close)
	d.Health.RegisterChecker("kafka", healthcheck.NewPingChecker("kafka", producer.Ping, false))

	d.OutboxWorker = outbox.NewWorker(
		d.Outbox,
		kafka.NewOutboxPublisher(producer, cfg.KafkaEventsTopic),
		outbox.WithLogger(d.Logger.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	if pruner, ok := d.Outbox.(domain.OutboxPruner); ok && cfg.OutboxRetention > 0 {
		d.OutboxRetention = outbox.NewRetentionWorker(
			pruner,
			outbox.WithRetentionLogger(d.Logger.WithField("component", "outbox-retention")),
			outbox.WithRetentionInterval(cfg.OutboxRetentionInterval),
			outbox.WithRetentionPeriod(cfg.OutboxRetention),
			outbox.WithRetentionBatchSize(cfg.OutboxBatchSize),
		)
	}

	if cfg.KafkaFulfillmentTopic == "" {
		return
	}
	handler := orders.NewFulfillmentHandler(d.Queries, d.Logger.WithField("component", "fulfillment"))
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:    cfg.KafkaBrokers,
		GroupID:    cfg.KafkaConsumerGroup,
		Topics:     []string{cfg.KafkaFulfillmentTopic},
		DLQTopic:   cfg.KafkaDLQTopic,
		MaxRetries: cfg.OutboxMaxAttempts,
		RetryDelay: cfg.OutboxRetryDelay,
	}, handler.Handle, producer, d.Logger.WithField("component", "kafka-consumer"))
	if err != nil {
		d.Logger.WithError(err).Warn("fulfillment consumer is disabled")
		return
	}
	d.Consumer = consumer
	d.addCloser(consumer.Stop)
}

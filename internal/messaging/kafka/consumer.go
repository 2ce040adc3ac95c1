package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/orders/internal/observability"
)

// ErrPermanent помечает ошибки, которые повтор не исправит: битый JSON, неизвестный тип события.
// Такие сообщения уходят в DLQ после первой же попытки.
var ErrPermanent = errors.New("permanent message failure")

const (
	defaultMaxRetries = 3
	maxConsumeDelay   = time.Minute
)

// MessageHandler обрабатывает одно сообщение из Kafka.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// ConsumerConfig задаёт параметры consumer group.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// DLQTopic по умолчанию TopicDeadLetterQueue.
	DLQTopic string
	// MaxRetries ограничивает общее число попыток с учётом заголовка x-retry-count.
	MaxRetries int
	// RetryDelay — первая пауза между попытками, дальше она удваивается. Ноль отключает паузы.
	RetryDelay time.Duration
}

// DeadLetter — тело сообщения, которое consumer кладёт в DLQ.
type DeadLetter struct {
	Topic     string    `json:"original_topic"`
	Partition int32     `json:"original_partition"`
	Offset    int64     `json:"original_offset"`
	Key       string    `json:"original_key"`
	Value     string    `json:"original_value"`
	Error     string    `json:"error_message"`
	Permanent bool      `json:"permanent"`
	Attempts  int       `json:"retry_count"`
	FailedAt  time.Time `json:"failed_at"`
}

// Consumer читает topics в составе consumer group и отдаёт сообщения MessageHandler.
// Сообщение коммитится после успешной обработки или после отправки в DLQ.
type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
	dlq     *Producer
	cfg     ConsumerConfig
	logger  *log.Entry
	wg      sync.WaitGroup
}

var _ sarama.ConsumerGroupHandler = (*Consumer)(nil)

// NewConsumer создаёт consumer group. При dlq == nil сообщения, исчерпавшие попытки,
// не коммитятся и будут перечитаны после ребалансировки.
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, dlq *Producer, logger *log.Entry) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errNoBrokers
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaCfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group %q: %w", cfg.GroupID, err)
	}
	return newConsumer(group, cfg, handler, dlq, logger), nil
}

func newConsumer(group sarama.ConsumerGroup, cfg ConsumerConfig, handler MessageHandler, dlq *Producer, logger *log.Entry) *Consumer {
	if logger == nil {
		logger = log.WithField("component", "kafka-consumer")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	cfg.RetryDelay = max(cfg.RetryDelay, 0)
	if cfg.DLQTopic == "" {
		cfg.DLQTopic = TopicDeadLetterQueue
	}
	return &Consumer{
		group:   group,
		handler: handler,
		dlq:     dlq,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start запускает чтение в фоне и сразу возвращается.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(2)
	go c.consumeLoop(ctx)
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Error("kafka consumer group error")
		}
	}()

	c.logger.WithField("topics", c.cfg.Topics).Info("kafka consumer started")
	return nil
}

// consumeLoop перезапускает Consume после каждой ребалансировки.
func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()
	for ctx.Err() == nil {
		err := c.group.Consume(ctx, c.cfg.Topics, c)
		switch {
		case errors.Is(err, sarama.ErrClosedConsumerGroup):
			return
		case err != nil:
			c.logger.WithError(err).Error("kafka consume session failed")
		}
	}
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	err := c.group.Close()
	c.wg.Wait()
	if err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	c.logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает сообщения одной партиции до закрытия канала или конца сессии.
// Если сообщение не обработано и не ушло в DLQ, claim завершается с ошибкой: сессия
// перезапускается с последнего закоммиченного offset, и следующие сообщения не коммитят его.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if err := c.process(ctx, message); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.WithError(err).WithFields(log.Fields{
					"topic":     message.Topic,
					"partition": message.Partition,
					"offset":    message.Offset,
				}).Error("kafka message left uncommitted, restarting claim")
				return fmt.Errorf("process %s/%d at offset %d: %w", message.Topic, message.Partition, message.Offset, err)
			}
			session.MarkMessage(message, "")
		}
	}
}

// process вызывает handler с повторами. nil означает, что сообщение можно коммитить:
// оно обработано либо отправлено в DLQ.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) (err error) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, incomingHeaders(message.Headers))
	ctx, span := observability.StartSpan(ctx, "kafka.consume",
		attribute.String("messaging.destination.name", message.Topic),
		attribute.Int64("messaging.kafka.partition", int64(message.Partition)),
		attribute.Int64("messaging.kafka.offset", message.Offset),
	)
	defer func() { observability.EndSpan(span, err) }()

	previous := retryCount(message)
	attempts := 0
	_, handleErr := backoff.Retry(ctx,
		func() (struct{}, error) {
			attempts++
			err := c.handler(ctx, message)
			if errors.Is(err, ErrPermanent) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(max(c.cfg.MaxRetries-previous, 1))),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.WithError(err).WithFields(log.Fields{
				"topic":    message.Topic,
				"offset":   message.Offset,
				"retry_in": next,
			}).Warn("kafka message handling failed, will retry")
		}),
	)
	if handleErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return handleErr
	}
	if errors.Is(handleErr, ErrPermanent) {
		c.logger.WithError(handleErr).WithField("topic", message.Topic).Warn("kafka message rejected permanently")
	}
	if c.dlq == nil {
		return handleErr
	}

	if err := c.deadLetter(ctx, message, handleErr, previous+attempts); err != nil {
		return fmt.Errorf("send to dlq: %w (handler: %w)", err, handleErr)
	}
	c.logger.WithFields(log.Fields{
		"topic":    message.Topic,
		"offset":   message.Offset,
		"attempts": previous + attempts,
	}).Info("kafka message moved to dlq")
	return nil
}

func (c *Consumer) newBackOff() backoff.BackOff {
	if c.cfg.RetryDelay == 0 {
		return &backoff.ZeroBackOff{}
	}
	return &backoff.ExponentialBackOff{
		InitialInterval:     c.cfg.RetryDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         max(maxConsumeDelay, c.cfg.RetryDelay),
	}
}

func (c *Consumer) deadLetter(ctx context.Context, message *sarama.ConsumerMessage, cause error, attempts int) error {
	failedAt := time.Now().UTC()
	return c.dlq.Send(ctx, Message{
		Topic: c.cfg.DLQTopic,
		Key:   string(message.Key),
		Value: DeadLetter{
			Topic:     message.Topic,
			Partition: message.Partition,
			Offset:    message.Offset,
			Key:       string(message.Key),
			Value:     string(message.Value),
			Error:     cause.Error(),
			Permanent: errors.Is(cause, ErrPermanent),
			Attempts:  attempts,
			FailedAt:  failedAt,
		},
		Headers: map[string]string{
			HeaderRetryCount:    strconv.Itoa(attempts),
			HeaderOriginalTopic: message.Topic,
			HeaderErrorMessage:  cause.Error(),
			HeaderFailedAt:      failedAt.Format(time.RFC3339),
		},
	})
}

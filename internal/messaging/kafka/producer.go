// Package kafka связывает сервис заказов с Kafka: публикует outbox и читает события fulfillment.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var errNoBrokers = errors.New("kafka brokers are not configured")

// Message — исходящее сообщение. Value сериализуется в JSON.
type Message struct {
	Topic   string
	Key     string
	Value   any
	Headers map[string]string
}

// Producer синхронно публикует сообщения и ждёт подтверждения от всех in-sync реплик.
type Producer struct {
	producer sarama.SyncProducer
	brokers  []string
	logger   *log.Entry
}

func producerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Compression = sarama.CompressionSnappy
	// Идемпотентный producer требует не больше одного запроса в полёте.
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// NewProducer подключается к брокерам.
func NewProducer(brokers []string, logger *log.Entry) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errNoBrokers
	}
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}

	syncProducer, err := sarama.NewSyncProducer(brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Producer{producer: syncProducer, brokers: brokers, logger: logger}, nil
}

// Send публикует сообщение. Контекст трассировки из ctx передаётся в заголовках.
func (p *Producer) Send(ctx context.Context, msg Message) error {
	value, err := json.Marshal(msg.Value)
	if err != nil {
		return fmt.Errorf("marshal kafka message for %s: %w", msg.Topic, err)
	}

	record := &sarama.ProducerMessage{
		Topic:     msg.Topic,
		Key:       sarama.StringEncoder(msg.Key),
		Value:     sarama.ByteEncoder(value),
		Timestamp: time.Now(),
	}
	for _, name := range slices.Sorted(maps.Keys(msg.Headers)) {
		record.Headers = append(record.Headers, sarama.RecordHeader{
			Key:   []byte(name),
			Value: []byte(msg.Headers[name]),
		})
	}
	otel.GetTextMapPropagator().Inject(ctx, outgoingHeaders{msg: record})

	logger := p.logger.WithFields(log.Fields{"topic": msg.Topic, "key": msg.Key})
	partition, offset, err := p.producer.SendMessage(record)
	if err != nil {
		logger.WithError(err).Error("kafka send failed")
		return fmt.Errorf("send kafka message to %s: %w", msg.Topic, err)
	}
	logger.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("kafka message sent")
	return nil
}

// PublishEvent публикует event без дополнительных заголовков.
func (p *Producer) PublishEvent(topic, key string, event any) error {
	return p.Send(context.Background(), Message{Topic: topic, Key: key, Value: event})
}

// Ping запрашивает метаданные кластера отдельным клиентом.
func (p *Producer) Ping(context.Context) error {
	if len(p.brokers) == 0 {
		return errNoBrokers
	}

	cfg := sarama.NewConfig()
	cfg.Net.DialTimeout = 2 * time.Second
	cfg.Metadata.Retry.Max = 0
	client, err := sarama.NewClient(p.brokers, cfg)
	if err != nil {
		return fmt.Errorf("kafka is unreachable: %w", err)
	}
	return client.Close()
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

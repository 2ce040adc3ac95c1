package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// Заголовки, по которым подписчики фильтруют outbox-сообщения без разбора тела.
const (
	HeaderOutboxID  = "x-outbox-id"
	HeaderEventType = "x-event-type"
)

// OutboxEnvelope — тело Kafka-сообщения, в котором уходит запись outbox.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// OutboxTopicPublisher реализует domain.OutboxPublisher поверх Producer.
// Ключ сообщения — ID заказа: события одного заказа идут в одну партицию по порядку.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)

func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// Publish отправляет запись. Любая ошибка оборачивает domain.ErrOutboxPublish.
func (p *OutboxTopicPublisher) Publish(msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("%w: kafka producer is not configured", domain.ErrOutboxPublish)
	}
	if !json.Valid(msg.Payload) {
		return fmt.Errorf("%w: outbox %s carries invalid json", domain.ErrOutboxPublish, msg.ID)
	}

	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}

	err := p.producer.Send(context.Background(), Message{
		Topic: p.topic,
		Key:   key,
		Value: OutboxEnvelope{
			ID:            msg.ID,
			AggregateType: msg.AggregateType,
			AggregateID:   msg.AggregateID,
			EventType:     msg.EventType,
			Payload:       json.RawMessage(msg.Payload),
			PublishedAt:   time.Now().UTC(),
		},
		Headers: map[string]string{
			HeaderOutboxID:  msg.ID,
			HeaderEventType: msg.EventType,
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrOutboxPublish, err)
	}
	return nil
}

func (p *OutboxTopicPublisher) Topic() string { return p.topic }

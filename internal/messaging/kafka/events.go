package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "orders.events"
	TopicFulfillment     = "orders.fulfillment"
	TopicDeadLetterQueue = "orders.dlq" // Dead Letter Queue для failed messages
)

// LineItem — позиция заказа в сообщениях Kafka.
type LineItem struct {
	Name       string `json:"name"`
	ProductID  string `json:"product_id"`
	Quantity   int32  `json:"quantity"`
	PriceMinor int64  `json:"price_minor"`
	TaxMinor   int64  `json:"tax_minor,omitempty"`
}

func lineItemFromDomain(item *domain.LineItem) *LineItem {
	if item == nil {
		return nil
	}
	return &LineItem{
		Name:       item.Name,
		ProductID:  item.ProductID,
		Quantity:   item.Quantity,
		PriceMinor: item.PriceMinor,
		TaxMinor:   item.TaxMinor,
	}
}

func (i *LineItem) toDomain() *domain.LineItem {
	if i == nil {
		return nil
	}
	return &domain.LineItem{
		Name:       i.Name,
		ProductID:  i.ProductID,
		Quantity:   i.Quantity,
		PriceMinor: i.PriceMinor,
		TaxMinor:   i.TaxMinor,
	}
}

// OrderEventMessage — полезная нагрузка outbox-сообщения order.event_appended.
type OrderEventMessage struct {
	EventID       string    `json:"event_id"`
	OrderID       string    `json:"order_id"`
	AccountNumber string    `json:"account_number"`
	Type          string    `json:"type"`
	Sequence      int64     `json:"sequence"`
	LineItem      *LineItem `json:"line_item,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewOrderEventMessage собирает сообщение о дописанном в журнал событии.
func NewOrderEventMessage(accountNumber string, event domain.OrderEvent) OrderEventMessage {
	return OrderEventMessage{
		EventID:       event.ID,
		OrderID:       event.OrderID,
		AccountNumber: accountNumber,
		Type:          string(event.Type),
		Sequence:      event.Sequence,
		LineItem:      lineItemFromDomain(event.LineItem),
		OccurredAt:    event.OccurredAt.UTC(),
	}
}

// FulfillmentMessage приходит от склада и службы доставки и дописывается в журнал заказа.
type FulfillmentMessage struct {
	OrderID    string    `json:"order_id"`
	Type       string    `json:"type"`
	LineItem   *LineItem `json:"line_item,omitempty"`
	OccurredAt time.Time `json:"occurred_at,omitzero"`
}

// ToOrderEvent превращает сообщение в событие журнала. ID и Sequence назначит хранилище.
func (m FulfillmentMessage) ToOrderEvent() domain.OrderEvent {
	return domain.OrderEvent{
		OrderID:    strings.TrimSpace(m.OrderID),
		Type:       domain.OrderEventType(strings.ToUpper(strings.TrimSpace(m.Type))),
		LineItem:   m.LineItem.toDomain(),
		OccurredAt: m.OccurredAt,
	}
}

// ParseFulfillmentMessage парсит FulfillmentMessage из сообщения
func ParseFulfillmentMessage(message *sarama.ConsumerMessage) (FulfillmentMessage, error) {
	var msg FulfillmentMessage
	if err := json.Unmarshal(message.Value, &msg); err != nil {
		return FulfillmentMessage{}, fmt.Errorf("failed to unmarshal fulfillment message: %w", err)
	}
	return msg, nil
}

package domain

import "time"

const (
	OutboxAggregateOrder = "order"
	// OutboxEventOrderEventAppended — в журнал заказа дописано событие.
	OutboxEventOrderEventAppended = "order.event_appended"
)

// OutboxStatus — состояние записи outbox. Переходы только из pending: в sent или failed.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// Processed сообщает, завершена ли запись и может ли её удалить retention.
func (s OutboxStatus) Processed() bool {
	return s == OutboxStatusSent || s == OutboxStatusFailed
}

// OutboxMessage — событие, ожидающее публикации. Payload содержит готовый JSON.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// NewEventAppendedMessage собирает запись order.event_appended для заказа orderID.
func NewEventAppendedMessage(orderID string, payload []byte) OutboxMessage {
	return OutboxMessage{
		AggregateType: OutboxAggregateOrder,
		AggregateID:   orderID,
		EventType:     OutboxEventOrderEventAppended,
		Payload:       payload,
	}
}

// OutboxStats — размер backlog. OldestPendingAt нулевой, если backlog пуст.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

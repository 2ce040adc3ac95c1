package domain

import "time"

// OrderEventType — тип события в журнале заказа. Набор закрыт.
type OrderEventType string

const (
	OrderEventCreated         OrderEventType = "CREATED"
	OrderEventOrdered         OrderEventType = "ORDERED"
	OrderEventReserved        OrderEventType = "RESERVED"
	OrderEventLineItemAdded   OrderEventType = "LINE_ITEM_ADDED"
	OrderEventLineItemRemoved OrderEventType = "LINE_ITEM_REMOVED"
	OrderEventShipped         OrderEventType = "SHIPPED"
	OrderEventDelivered       OrderEventType = "DELIVERED"
	OrderEventCanceled        OrderEventType = "CANCELED"
)

// Valid проверяет, что тип события относится к поддерживаемым значениям.
func (t OrderEventType) Valid() bool {
	switch t {
	case OrderEventCreated, OrderEventOrdered, OrderEventReserved,
		OrderEventLineItemAdded, OrderEventLineItemRemoved,
		OrderEventShipped, OrderEventDelivered, OrderEventCanceled:
		return true
	default:
		return false
	}
}

// OrderEvent — запись append-only журнала заказа.
type OrderEvent struct {
	ID      string
	OrderID string
	Type    OrderEventType
	// Sequence назначается хранилищем событий и задаёт полный порядок в рамках заказа.
	Sequence int64
	// LineItem заполняется для LINE_ITEM_ADDED / LINE_ITEM_REMOVED.
	LineItem   *LineItem
	OccurredAt time.Time
}

// Validate проверяет событие перед записью в журнал.
func (e OrderEvent) Validate() error {
	if e.OrderID == "" {
		return ErrOrderIDRequired
	}
	if !e.Type.Valid() {
		return ErrUnknownEventType
	}
	if e.Type != OrderEventLineItemAdded && e.Type != OrderEventLineItemRemoved {
		return nil
	}
	if e.LineItem == nil {
		return ErrLineItemRequired
	}
	return e.LineItem.ValidatePayload()
}

package aggregate

import (
	"math"
	"slices"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

func defaultAppliers() map[domain.OrderEventType]ApplyFunc {
	return map[domain.OrderEventType]ApplyFunc{
		domain.OrderEventCreated:         setStatus(domain.OrderStatusPending),
		domain.OrderEventOrdered:         setStatus(domain.OrderStatusConfirmed),
		domain.OrderEventReserved:        setStatus(domain.OrderStatusReserved),
		domain.OrderEventLineItemAdded:   addLineItem,
		domain.OrderEventLineItemRemoved: removeLineItem,
		domain.OrderEventShipped:         applyShipped,
		domain.OrderEventDelivered:       applyDelivered,
		domain.OrderEventCanceled:        applyCanceled,
	}
}

func setStatus(status domain.OrderStatus) ApplyFunc {
	return func(order *domain.Order, _ domain.OrderEvent) error {
		order.Status = status
		return nil
	}
}

func applyShipped(order *domain.Order, event domain.OrderEvent) error {
	order.Status = domain.OrderStatusShipped
	order.ShippedAt = event.OccurredAt
	return nil
}

func applyDelivered(order *domain.Order, event domain.OrderEvent) error {
	order.Status = domain.OrderStatusDelivered
	order.DeliveredAt = event.OccurredAt
	return nil
}

func applyCanceled(order *domain.Order, event domain.OrderEvent) error {
	order.Status = domain.OrderStatusCanceled
	order.CanceledAt = event.OccurredAt
	return nil
}

// addLineItem добавляет позицию; при совпадении ProductID увеличивает количество.
// Количество насыщается на math.MaxInt32 и не переполняется.
func addLineItem(order *domain.Order, event domain.OrderEvent) error {
	item, err := lineItemPayload(event)
	if err != nil {
		return err
	}

	idx := slices.IndexFunc(order.LineItems, func(li domain.LineItem) bool {
		return li.ProductID == item.ProductID
	})
	if idx < 0 {
		order.LineItems = append(order.LineItems, item)
		return nil
	}
	current := order.LineItems[idx].Quantity
	order.LineItems[idx].Quantity = int32(min(int64(current)+int64(item.Quantity), math.MaxInt32))
	return nil
}

// removeLineItem уменьшает количество позиции и удаляет её, когда количество исчерпано.
// Удаление отсутствующей позиции ничего не меняет.
func removeLineItem(order *domain.Order, event domain.OrderEvent) error {
	item, err := lineItemPayload(event)
	if err != nil {
		return err
	}

	idx := slices.IndexFunc(order.LineItems, func(li domain.LineItem) bool {
		return li.ProductID == item.ProductID
	})
	if idx < 0 {
		return nil
	}
	order.LineItems[idx].Quantity -= item.Quantity
	if order.LineItems[idx].Quantity <= 0 {
		order.LineItems = slices.Delete(order.LineItems, idx, idx+1)
	}
	return nil
}

func lineItemPayload(event domain.OrderEvent) (domain.LineItem, error) {
	if event.LineItem == nil {
		return domain.LineItem{}, domain.ErrLineItemRequired
	}
	if err := event.LineItem.ValidatePayload(); err != nil {
		return domain.LineItem{}, err
	}
	return *event.LineItem, nil
}

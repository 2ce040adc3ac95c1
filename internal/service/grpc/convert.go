package grpcsvc

import (
	"fmt"
	"strings"

	ordersv1 "github.com/vladislavdragonenkov/orders/api/orders/v1"
	"github.com/vladislavdragonenkov/orders/internal/domain"
)

func lineItemsFromRequest(items []*ordersv1.LineItem) ([]domain.LineItem, error) {
	out := make([]domain.LineItem, 0, len(items))
	for idx, item := range items {
		if item == nil {
			return nil, fmt.Errorf("%w: line_items[%d] is nil", domain.ErrInvalidInput, idx)
		}
		out = append(out, *lineItemFromProto(item))
	}
	return out, nil
}

func lineItemFromProto(item *ordersv1.LineItem) *domain.LineItem {
	if item == nil {
		return nil
	}
	return &domain.LineItem{
		Name:       item.Name,
		ProductID:  item.ProductId,
		Quantity:   item.Quantity,
		PriceMinor: item.PriceMinor,
		TaxMinor:   item.TaxMinor,
	}
}

func toProtoLineItem(item domain.LineItem) *ordersv1.LineItem {
	return &ordersv1.LineItem{
		Name:       item.Name,
		ProductId:  item.ProductID,
		Quantity:   item.Quantity,
		PriceMinor: item.PriceMinor,
		TaxMinor:   item.TaxMinor,
	}
}

func toProtoOrder(order domain.Order) *ordersv1.Order {
	items := make([]*ordersv1.LineItem, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		items = append(items, toProtoLineItem(item))
	}

	address := order.ShippingAddress
	return &ordersv1.Order{
		Id:            order.ID,
		AccountNumber: order.AccountNumber,
		ShippingAddress: &ordersv1.Address{
			Street1:     address.Street1,
			Street2:     address.Street2,
			State:       address.State,
			City:        address.City,
			Country:     address.Country,
			ZipCode:     address.ZipCode,
			AddressType: string(address.AddressType),
		},
		LineItems:         items,
		Status:            string(order.Status),
		ShippedAt:         order.ShippedAt,
		DeliveredAt:       order.DeliveredAt,
		CanceledAt:        order.CanceledAt,
		LastEventSequence: order.LastEventSequence,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
}

// eventFromProto принимает тип события в любом регистре; ID, Sequence и время
// назначает хранилище.
func eventFromProto(event *ordersv1.OrderEvent) domain.OrderEvent {
	return domain.OrderEvent{
		OrderID:  strings.TrimSpace(event.OrderId),
		Type:     domain.OrderEventType(strings.ToUpper(strings.TrimSpace(event.Type))),
		LineItem: lineItemFromProto(event.LineItem),
	}
}

func toProtoEvent(event domain.OrderEvent) *ordersv1.OrderEvent {
	out := &ordersv1.OrderEvent{
		Id:         event.ID,
		OrderId:    event.OrderID,
		Type:       string(event.Type),
		Sequence:   event.Sequence,
		OccurredAt: event.OccurredAt,
	}
	if event.LineItem != nil {
		out.LineItem = toProtoLineItem(*event.LineItem)
	}
	return out
}

package domain

import (
	"fmt"
	"slices"
	"time"
)

// OrderStatus описывает жизненный цикл заказа, выводимый из журнала событий.
type OrderStatus string

const (
	// OrderStatusPurchased — заказ только что создан, событий ещё нет.
	OrderStatusPurchased OrderStatus = "PURCHASED"
	// OrderStatusPending — заказ зарегистрирован в журнале (событие CREATED).
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusConfirmed — заказ подтверждён (событие ORDERED).
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusReserved — товары зарезервированы на складе.
	OrderStatusReserved OrderStatus = "RESERVED"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered — заказ доставлен; терминальное состояние.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCanceled — заказ отменён до доставки.
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// LineItem — позиция заказа, которую передаёт вызывающий при создании.
type LineItem struct {
	Name      string `json:"name"`
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	// PriceMinor — цена за единицу в минимальных денежных единицах.
	PriceMinor int64 `json:"price_minor"`
	TaxMinor   int64 `json:"tax_minor"`
}

// Order — базовая запись заказа. После создания меняется только через свёртку событий.
type Order struct {
	ID            string
	AccountNumber string
	// ShippingAddress фиксируется при создании и больше не пересчитывается.
	ShippingAddress Address
	LineItems       []LineItem
	Status          OrderStatus

	ShippedAt   time.Time
	DeliveredAt time.Time
	CanceledAt  time.Time

	// LastEventSequence — позиция последнего применённого события (0, если событий не было).
	LastEventSequence int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone возвращает копию заказа, не разделяющую срез позиций с оригиналом.
func (o Order) Clone() Order {
	o.LineItems = slices.Clone(o.LineItems)
	return o
}

// ValidatePayload проверяет позицию из события LINE_ITEM_ADDED / LINE_ITEM_REMOVED.
// Свёртка применяет только позиции, прошедшие эту проверку.
func (li LineItem) ValidatePayload() error {
	if li.ProductID == "" {
		return ErrLineItemProductRequired
	}
	if li.Quantity <= 0 {
		return fmt.Errorf("%w: got %d", ErrLineItemQtyInvalid, li.Quantity)
	}
	return nil
}

// ValidateLineItems проверяет позиции, переданные при создании заказа.
func ValidateLineItems(items []LineItem) []error {
	var errs []error
	for _, item := range items {
		if item.ProductID == "" {
			errs = append(errs, ErrLineItemProductRequired)
		}
		if item.Quantity <= 0 {
			errs = append(errs, ErrLineItemQtyInvalid)
		}
		if item.PriceMinor < 0 || item.TaxMinor < 0 {
			errs = append(errs, ErrLineItemPriceInvalid)
		}
	}
	return errs
}

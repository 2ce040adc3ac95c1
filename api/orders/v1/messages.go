// Package ordersv1 описывает контракт gRPC API сервиса заказов: сообщения,
// JSON-кодек и дескриптор сервиса orders.v1.OrderService.
package ordersv1

import "time"

// LineItem — позиция заказа.
type LineItem struct {
	Name       string `json:"name,omitempty"`
	ProductId  string `json:"product_id,omitempty"`
	Quantity   int32  `json:"quantity,omitempty"`
	PriceMinor int64  `json:"price_minor,omitempty"`
	TaxMinor   int64  `json:"tax_minor,omitempty"`
}

func (x *LineItem) GetProductId() string {
	if x != nil {
		return x.ProductId
	}
	return ""
}

func (x *LineItem) GetQuantity() int32 {
	if x != nil {
		return x.Quantity
	}
	return 0
}

// Address — адрес доставки заказа.
type Address struct {
	Street1     string `json:"street1,omitempty"`
	Street2     string `json:"street2,omitempty"`
	State       string `json:"state,omitempty"`
	City        string `json:"city,omitempty"`
	Country     string `json:"country,omitempty"`
	ZipCode     string `json:"zip_code,omitempty"`
	AddressType string `json:"address_type,omitempty"`
}

// Order — агрегированное состояние заказа.
type Order struct {
	Id                string      `json:"id,omitempty"`
	AccountNumber     string      `json:"account_number,omitempty"`
	ShippingAddress   *Address    `json:"shipping_address,omitempty"`
	LineItems         []*LineItem `json:"line_items,omitempty"`
	Status            string      `json:"status,omitempty"`
	ShippedAt         time.Time   `json:"shipped_at,omitzero"`
	DeliveredAt       time.Time   `json:"delivered_at,omitzero"`
	CanceledAt        time.Time   `json:"canceled_at,omitzero"`
	LastEventSequence int64       `json:"last_event_sequence,omitempty"`
	CreatedAt         time.Time   `json:"created_at,omitzero"`
	UpdatedAt         time.Time   `json:"updated_at,omitzero"`
}

func (x *Order) GetId() string {
	if x != nil {
		return x.Id
	}
	return ""
}

func (x *Order) GetStatus() string {
	if x != nil {
		return x.Status
	}
	return ""
}

// OrderEvent — запись журнала событий заказа.
type OrderEvent struct {
	Id         string    `json:"id,omitempty"`
	OrderId    string    `json:"order_id,omitempty"`
	Type       string    `json:"type,omitempty"`
	Sequence   int64     `json:"sequence,omitempty"`
	LineItem   *LineItem `json:"line_item,omitempty"`
	OccurredAt time.Time `json:"occurred_at,omitzero"`
}

func (x *OrderEvent) GetOrderId() string {
	if x != nil {
		return x.OrderId
	}
	return ""
}

type CreateOrderRequest struct {
	LineItems []*LineItem `json:"line_items,omitempty"`
}

// CreateOrderResponse без Order означает, что у вызывающего нет аккаунта по умолчанию.
type CreateOrderResponse struct {
	Order *Order `json:"order,omitempty"`
}

func (x *CreateOrderResponse) GetOrder() *Order {
	if x != nil {
		return x.Order
	}
	return nil
}

type GetOrderRequest struct {
	OrderId string `json:"order_id,omitempty"`
}

func (x *GetOrderRequest) GetOrderId() string {
	if x != nil {
		return x.OrderId
	}
	return ""
}

type GetOrderResponse struct {
	Order *Order `json:"order,omitempty"`
}

func (x *GetOrderResponse) GetOrder() *Order {
	if x != nil {
		return x.Order
	}
	return nil
}

type AddOrderEventRequest struct {
	Event *OrderEvent `json:"event,omitempty"`
}

func (x *AddOrderEventRequest) GetEvent() *OrderEvent {
	if x != nil {
		return x.Event
	}
	return nil
}

type AddOrderEventResponse struct {
	Event *OrderEvent `json:"event,omitempty"`
}

func (x *AddOrderEventResponse) GetEvent() *OrderEvent {
	if x != nil {
		return x.Event
	}
	return nil
}

type ListAccountOrdersRequest struct {
	AccountNumber string `json:"account_number,omitempty"`
}

func (x *ListAccountOrdersRequest) GetAccountNumber() string {
	if x != nil {
		return x.AccountNumber
	}
	return ""
}

type ListAccountOrdersResponse struct {
	Orders []*Order `json:"orders,omitempty"`
}

func (x *ListAccountOrdersResponse) GetOrders() []*Order {
	if x != nil {
		return x.Orders
	}
	return nil
}

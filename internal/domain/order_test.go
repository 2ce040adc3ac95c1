package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:            "order-1",
		AccountNumber: "A001",
		ShippingAddress: domain.Address{
			Street1:     "42 Elm St",
			City:        "Springfield",
			Country:     "US",
			ZipCode:     "12345",
			AddressType: domain.AddressTypeShipping,
		},
		LineItems: []domain.LineItem{
			{Name: "Book", ProductID: "sku-1", Quantity: 2, PriceMinor: 500},
		},
		Status:    domain.OrderStatusPurchased,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderClone_DoesNotShareLineItems(t *testing.T) {
	order := makeOrder()
	clone := order.Clone()

	clone.LineItems[0].Quantity = 99
	clone.LineItems = append(clone.LineItems, domain.LineItem{ProductID: "sku-2", Quantity: 1})

	if order.LineItems[0].Quantity != 2 {
		t.Fatalf("clone mutated original quantity: %d", order.LineItems[0].Quantity)
	}
	if len(order.LineItems) != 1 {
		t.Fatalf("clone mutated original slice length: %d", len(order.LineItems))
	}
}

func TestValidateLineItems(t *testing.T) {
	cases := []struct {
		name string
		item domain.LineItem
		want error
	}{
		{name: "ok", item: domain.LineItem{ProductID: "sku-1", Quantity: 1, PriceMinor: 100}},
		{name: "no product", item: domain.LineItem{Quantity: 1}, want: domain.ErrLineItemProductRequired},
		{name: "zero qty", item: domain.LineItem{ProductID: "sku-1"}, want: domain.ErrLineItemQtyInvalid},
		{name: "negative tax", item: domain.LineItem{ProductID: "sku-1", Quantity: 1, TaxMinor: -1}, want: domain.ErrLineItemPriceInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs := domain.ValidateLineItems([]domain.LineItem{tc.item})
			if tc.want == nil {
				if len(errs) != 0 {
					t.Fatalf("expected no errors, got %v", errs)
				}
				return
			}
			if len(errs) != 1 || !errors.Is(errs[0], tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, errs)
			}
			if !domain.IsInvalidInput(errs[0]) {
				t.Fatalf("line item errors must classify as invalid input: %v", errs[0])
			}
		})
	}
}

func TestDefaultAccountAndShippingAddress(t *testing.T) {
	accounts := []domain.Account{
		{AccountNumber: "A000"},
		{
			AccountNumber:  "A001",
			DefaultAccount: true,
			Addresses: []domain.Address{
				{Street1: "1 Billing Rd", AddressType: domain.AddressTypeBilling},
				{Street1: "42 Elm St", AddressType: domain.AddressTypeShipping},
				{Street1: "7 Other Ln", AddressType: domain.AddressTypeShipping},
			},
		},
	}

	account, ok := domain.DefaultAccount(accounts)
	if !ok || account.AccountNumber != "A001" {
		t.Fatalf("expected default account A001, got %+v (ok=%v)", account, ok)
	}

	address, ok := account.FirstAddress(domain.AddressTypeShipping)
	if !ok || address.Street1 != "42 Elm St" {
		t.Fatalf("expected first shipping address, got %+v (ok=%v)", address, ok)
	}

	if _, ok := domain.DefaultAccount(accounts[:1]); ok {
		t.Fatal("expected no default account")
	}
}

func TestOrderEventValidate(t *testing.T) {
	item := func(productID string, qty int32) *domain.LineItem {
		return &domain.LineItem{ProductID: productID, Quantity: qty}
	}
	cases := []struct {
		name  string
		event domain.OrderEvent
		want  error
	}{
		{name: "status event", event: domain.OrderEvent{OrderID: "o1", Type: domain.OrderEventShipped}},
		{name: "line item added", event: domain.OrderEvent{OrderID: "o1", Type: domain.OrderEventLineItemAdded, LineItem: item("pen", 1)}},
		{name: "no order id", event: domain.OrderEvent{Type: domain.OrderEventShipped}, want: domain.ErrOrderIDRequired},
		{name: "unknown type", event: domain.OrderEvent{OrderID: "o1", Type: "RETURNED"}, want: domain.ErrUnknownEventType},
		{name: "no payload", event: domain.OrderEvent{OrderID: "o1", Type: domain.OrderEventLineItemRemoved}, want: domain.ErrLineItemRequired},
		{name: "no product", event: domain.OrderEvent{OrderID: "o1", Type: domain.OrderEventLineItemAdded, LineItem: item("", 1)}, want: domain.ErrLineItemProductRequired},
		{name: "zero qty", event: domain.OrderEvent{OrderID: "o1", Type: domain.OrderEventLineItemAdded, LineItem: item("pen", 0)}, want: domain.ErrLineItemQtyInvalid},
		{name: "negative qty", event: domain.OrderEvent{OrderID: "o1", Type: domain.OrderEventLineItemRemoved, LineItem: item("pen", -1)}, want: domain.ErrLineItemQtyInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.event.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected valid event, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

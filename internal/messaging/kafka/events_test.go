package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

func TestNewOrderEventMessage(t *testing.T) {
	occurred := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("MSK", 3*3600))
	event := domain.OrderEvent{
		ID:         "e-1",
		OrderID:    "o-1",
		Type:       domain.OrderEventLineItemAdded,
		Sequence:   4,
		LineItem:   &domain.LineItem{Name: "Pen", ProductID: "pen", Quantity: 2, PriceMinor: 150},
		OccurredAt: occurred,
	}

	msg := NewOrderEventMessage("A001", event)

	if msg.EventID != "e-1" || msg.OrderID != "o-1" || msg.AccountNumber != "A001" {
		t.Fatalf("unexpected identifiers: %+v", msg)
	}
	if msg.Type != "LINE_ITEM_ADDED" || msg.Sequence != 4 {
		t.Fatalf("unexpected type or sequence: %+v", msg)
	}
	if msg.LineItem == nil || msg.LineItem.ProductID != "pen" || msg.LineItem.Quantity != 2 {
		t.Fatalf("unexpected line item: %+v", msg.LineItem)
	}
	if msg.OccurredAt.Location() != time.UTC || !msg.OccurredAt.Equal(occurred) {
		t.Fatalf("occurred_at should be normalized to UTC, got %v", msg.OccurredAt)
	}
}

func TestParseFulfillmentMessage(t *testing.T) {
	msg, err := ParseFulfillmentMessage(&sarama.ConsumerMessage{
		Value: []byte(`{"order_id":" o-1 ","type":"line_item_removed","line_item":{"product_id":"x","quantity":1}}`),
	})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	event := msg.ToOrderEvent()
	if event.OrderID != "o-1" {
		t.Fatalf("expected trimmed order id, got %q", event.OrderID)
	}
	if event.Type != domain.OrderEventLineItemRemoved {
		t.Fatalf("expected normalized type, got %q", event.Type)
	}
	if event.LineItem == nil || event.LineItem.ProductID != "x" {
		t.Fatalf("unexpected line item: %+v", event.LineItem)
	}
	if event.ID != "" || event.Sequence != 0 {
		t.Fatal("id and sequence are assigned by the store")
	}

	if _, err := ParseFulfillmentMessage(&sarama.ConsumerMessage{Value: []byte("{")}); err == nil {
		t.Fatal("expected parse error")
	}
}

package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutboxStatus_Processed(t *testing.T) {
	assert.False(t, OutboxStatusPending.Processed())
	assert.True(t, OutboxStatusSent.Processed())
	assert.True(t, OutboxStatusFailed.Processed())
	assert.False(t, OutboxStatus("archived").Processed())
}

func TestNewEventAppendedMessage(t *testing.T) {
	msg := NewEventAppendedMessage("order-7", []byte(`{"type":"SHIPPED"}`))

	assert.Empty(t, msg.ID, "id is assigned by the repository")
	assert.Equal(t, OutboxAggregateOrder, msg.AggregateType)
	assert.Equal(t, "order-7", msg.AggregateID)
	assert.Equal(t, OutboxEventOrderEventAppended, msg.EventType)
	assert.JSONEq(t, `{"type":"SHIPPED"}`, string(msg.Payload))
}

func TestErrOutboxMessageNotFound(t *testing.T) {
	assert.True(t, errors.Is(ErrOutboxMessageNotFound, ErrOutboxPublish))
}

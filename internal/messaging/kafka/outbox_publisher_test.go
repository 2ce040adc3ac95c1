package kafka

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

func newMockedProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()
	mock := mocks.NewSyncProducer(t, nil)
	return &Producer{producer: mock, logger: log.WithField("test", t.Name())}, mock
}

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	producer, mock := newMockedProducer(t)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "order-123" {
			return fmt.Errorf("unexpected key %s", key)
		}
		raw, _ := msg.Value.Encode()
		var envelope OutboxEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return err
		}
		if envelope.ID != "outbox-1" || envelope.EventType != domain.OutboxEventOrderEventAppended {
			return fmt.Errorf("unexpected envelope %+v", envelope)
		}
		if string(envelope.Payload) != `{"type":"SHIPPED"}` {
			return fmt.Errorf("unexpected payload %s", envelope.Payload)
		}
		if (outgoingHeaders{msg: msg}).Get(HeaderEventType) != domain.OutboxEventOrderEventAppended {
			return fmt.Errorf("event type header is missing")
		}
		return nil
	})

	publisher := NewOutboxPublisher(producer, "")
	assert.Equal(t, TopicOrderEvents, publisher.Topic())

	require.NoError(t, publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.OutboxAggregateOrder,
		AggregateID:   "order-123",
		EventType:     domain.OutboxEventOrderEventAppended,
		Payload:       []byte(`{"type":"SHIPPED"}`),
	}))
	require.NoError(t, mock.Close())
}

func TestOutboxPublisher_KeyFallsBackToOutboxID(t *testing.T) {
	t.Parallel()

	producer, mock := newMockedProducer(t)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "outbox-9" {
			return fmt.Errorf("unexpected key %s", key)
		}
		return nil
	})

	require.NoError(t, NewOutboxPublisher(producer, "orders.custom").Publish(domain.OutboxMessage{ID: "outbox-9", Payload: []byte(`{}`)}))
	require.NoError(t, mock.Close())
}

func TestOutboxPublisher_Errors(t *testing.T) {
	t.Parallel()

	t.Run("producer failure", func(t *testing.T) {
		producer, mock := newMockedProducer(t)
		mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

		err := NewOutboxPublisher(producer, TopicOrderEvents).Publish(domain.OutboxMessage{ID: "outbox-2", AggregateID: "order-2", Payload: []byte(`{}`)})
		require.ErrorIs(t, err, domain.ErrOutboxPublish)
		require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
		require.NoError(t, mock.Close())
	})

	t.Run("invalid payload", func(t *testing.T) {
		err := NewOutboxPublisher(&Producer{}, TopicOrderEvents).Publish(domain.OutboxMessage{ID: "outbox-4", Payload: []byte("{")})
		require.ErrorIs(t, err, domain.ErrOutboxPublish)
	})

	t.Run("no producer", func(t *testing.T) {
		err := NewOutboxPublisher(nil, TopicOrderEvents).Publish(domain.OutboxMessage{ID: "outbox-3"})
		require.ErrorIs(t, err, domain.ErrOutboxPublish)
	})
}

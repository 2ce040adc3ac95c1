package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
)

// fulfillmentCaller помечает записи, пришедшие из внутреннего топика исполнения заказов.
var fulfillmentCaller = domain.Caller{Subject: "fulfillment"}

// FulfillmentHandler дописывает события склада и доставки в журнал заказа.
// Источник доверенный, поэтому владение аккаунтом не проверяется.
type FulfillmentHandler struct {
	queries *QueryService
	logger  *log.Entry
}

// NewFulfillmentHandler создаёт обработчик сообщений топика исполнения.
func NewFulfillmentHandler(queries *QueryService, logger *log.Entry) *FulfillmentHandler {
	if logger == nil {
		logger = log.WithField("component", "fulfillment-handler")
	}
	return &FulfillmentHandler{queries: queries, logger: logger}
}

// Handle реализует kafka.MessageHandler. Ошибки данных помечаются kafka.ErrPermanent
// и уходят в DLQ без повторов.
func (h *FulfillmentHandler) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	msg, err := kafka.ParseFulfillmentMessage(message)
	if err != nil {
		return fmt.Errorf("%w: %w", kafka.ErrPermanent, err)
	}

	stored, err := h.queries.AddOrderEvent(ctx, fulfillmentCaller, msg.ToOrderEvent(), false)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) ||
			errors.Is(err, domain.ErrUnknownEventType) ||
			errors.Is(err, domain.ErrOrderNotFound) {
			return fmt.Errorf("%w: %w", kafka.ErrPermanent, err)
		}
		return err
	}

	h.logger.WithFields(log.Fields{
		"order_id":   stored.OrderID,
		"event_type": stored.Type,
		"sequence":   stored.Sequence,
		"offset":     message.Offset,
	}).Debug("fulfillment event appended")
	return nil
}

var _ kafka.MessageHandler = (*FulfillmentHandler)(nil).Handle

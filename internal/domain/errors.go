package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput — некорректная пара (заказ, события) или запрос; ошибка вызывающего, не повторяется.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownEventType — тип события вне закрытого набора (порча данных или дрейф схемы).
	ErrUnknownEventType = errors.New("unknown order event type")
	// ErrDirectoryUnavailable — справочник аккаунтов не ответил; повтор — на стороне вызывающего.
	ErrDirectoryUnavailable = errors.New("account directory unavailable")
	// ErrAccountNotOwned — номер аккаунта не принадлежит вызывающему.
	ErrAccountNotOwned = errors.New("account number invalid")
	// ErrMissingShippingAddress — у аккаунта по умолчанию нет адреса доставки.
	ErrMissingShippingAddress = errors.New("default account does not have a shipping address")

	// ErrOrderNotFound возвращается, если заказ не найден (или скрыт от вызывающего).
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists — заказ с таким ID уже сохранён.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	ErrOrderIDRequired         = fmt.Errorf("%w: order_id is required", ErrInvalidInput)
	ErrLineItemRequired        = fmt.Errorf("%w: line item payload is required", ErrInvalidInput)
	ErrLineItemProductRequired = fmt.Errorf("%w: line item product_id is required", ErrInvalidInput)
	ErrLineItemQtyInvalid      = fmt.Errorf("%w: line item quantity must be greater than zero", ErrInvalidInput)
	ErrLineItemPriceInvalid    = fmt.Errorf("%w: line item price and tax must be non-negative", ErrInvalidInput)

	ErrOutboxMessageNotFound = fmt.Errorf("%w: outbox message not found", ErrOutboxPublish)
)

// IsNotFound проверяет, означает ли ошибка отсутствие заказа.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}

// IsInvalidInput проверяет, является ли ошибка ошибкой входных данных.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

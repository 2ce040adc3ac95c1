package domain

import "context"

// AccountDirectory — внешний справочник аккаунтов. Один порт разделяют создание заказа
// и проверка владения.
type AccountDirectory interface {
	// ListAccounts возвращает аккаунты вызывающего. Ошибки транспорта оборачивают ErrDirectoryUnavailable.
	ListAccounts(ctx context.Context, caller Caller) ([]Account, error)
}

// OutboxPublisher доставляет запись outbox во внешнюю шину. Повторная доставка той же записи
// допустима: получатели дедуплицируют по OutboxMessage.ID.
type OutboxPublisher interface {
	Publish(msg OutboxMessage) error
}

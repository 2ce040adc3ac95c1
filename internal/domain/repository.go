package domain

import (
	"context"
	"time"
)

// OrderRepository описывает требования к хранилищу базовых записей заказов.
// Обновления нет: текущее состояние заказа вычисляется из журнала событий.
type OrderRepository interface {
	// Create сохраняет новый заказ. Пустой ID заполняется хранилищем.
	Create(ctx context.Context, order Order) (Order, error)
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByAccount возвращает заказы аккаунта в порядке создания.
	ListByAccount(ctx context.Context, accountNumber string) ([]Order, error)
}

// EventRepository — append-only журнал событий заказов.
type EventRepository interface {
	// Append дописывает событие и назначает ему ID, Sequence и (если пусто) OccurredAt.
	Append(ctx context.Context, event OrderEvent) (OrderEvent, error)
	// FindByOrderID возвращает события заказа по возрастанию Sequence.
	FindByOrderID(ctx context.Context, orderID string) ([]OrderEvent, error)
}

// OutboxRepository хранит записи transactional outbox до их публикации.
type OutboxRepository interface {
	// Enqueue сохраняет запись в статусе pending; пустой ID заполняется хранилищем.
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	// PullPending отдаёт до limit самых старых pending-записей в порядке постановки.
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	// MarkSent и MarkFailed завершают запись; для неизвестного ID возвращают ErrOutboxMessageNotFound.
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxPruner удаляет завершённые (sent или failed) записи outbox.
type OutboxPruner interface {
	// DeleteProcessed удаляет до limit записей, завершённых не позже before, и возвращает их число.
	DeleteProcessed(ctx context.Context, before time.Time, limit int) (int, error)
}

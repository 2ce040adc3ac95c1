package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

type orderRepositoryInMemory struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
	// byAccount — ID заказов аккаунта в порядке создания.
	byAccount map[string][]string
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
// Заказы хранятся и отдаются копиями: вызывающий не может изменить сохранённое состояние.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		orders:    make(map[string]domain.Order),
		byAccount: make(map[string][]string),
	}
}

func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) (domain.Order, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	stored := order.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.orders[stored.ID]; dup {
		return domain.Order{}, fmt.Errorf("create order %s: %w", stored.ID, domain.ErrOrderAlreadyExists)
	}
	r.orders[stored.ID] = stored
	r.byAccount[stored.AccountNumber] = append(r.byAccount[stored.AccountNumber], stored.ID)
	return stored.Clone(), nil
}

func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if order, ok := r.orders[id]; ok {
		return order.Clone(), nil
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

func (r *orderRepositoryInMemory) ListByAccount(_ context.Context, accountNumber string) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byAccount[accountNumber]
	list := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		list = append(list, r.orders[id].Clone())
	}
	return list, nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)

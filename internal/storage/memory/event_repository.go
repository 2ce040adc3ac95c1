package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// eventRepositoryInMemory хранит журналы событий по заказам.
type eventRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.OrderEvent
}

// NewEventRepository создаёт in-memory журнал событий.
func NewEventRepository() domain.EventRepository {
	return &eventRepositoryInMemory{events: make(map[string][]domain.OrderEvent)}
}

// Append назначает событию ID, следующий Sequence заказа и время (если не задано).
func (r *eventRepositoryInMemory) Append(_ context.Context, event domain.OrderEvent) (domain.OrderEvent, error) {
	if event.OrderID == "" {
		return domain.OrderEvent{}, domain.ErrOrderIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	log := r.events[event.OrderID]
	event.ID = uuid.NewString()
	event.Sequence = int64(len(log)) + 1
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	event.LineItem = cloneLineItem(event.LineItem)

	r.events[event.OrderID] = append(log, event)

	event.LineItem = cloneLineItem(event.LineItem)
	return event, nil
}

// FindByOrderID возвращает копию журнала заказа по возрастанию Sequence.
func (r *eventRepositoryInMemory) FindByOrderID(_ context.Context, orderID string) ([]domain.OrderEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := slices.Clone(r.events[orderID])
	for i := range result {
		result[i].LineItem = cloneLineItem(result[i].LineItem)
	}
	return result, nil
}

func cloneLineItem(item *domain.LineItem) *domain.LineItem {
	if item == nil {
		return nil
	}
	clone := *item
	return &clone
}

var _ domain.EventRepository = (*eventRepositoryInMemory)(nil)

package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

const defaultPullLimit = 100

type outboxEntry struct {
	msg       domain.OutboxMessage
	status    domain.OutboxStatus
	attempts  int
	createdAt time.Time
	updatedAt time.Time
}

// OutboxRepository держит outbox в памяти процесса: очередь в порядке постановки и индекс по ID.
type OutboxRepository struct {
	mu    sync.RWMutex
	queue []*outboxEntry
	byID  map[string]*outboxEntry
	now   func() time.Time
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		byID: make(map[string]*outboxEntry),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue ставит запись в конец очереди. Повтор ID отклоняется, как нарушение первичного ключа в PostgreSQL.
func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, dup := r.byID[msg.ID]; dup {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message %s: duplicate id", msg.ID)
	}
	msg.Payload = slices.Clone(msg.Payload)

	now := r.now()
	entry := &outboxEntry{msg: msg, status: domain.OutboxStatusPending, createdAt: now, updatedAt: now}
	r.queue = append(r.queue, entry)
	r.byID[msg.ID] = entry
	return msg, nil
}

func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultPullLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.OutboxMessage
	for _, e := range r.queue {
		if len(out) == limit {
			break
		}
		if e.status == domain.OutboxStatusPending {
			out = append(out, e.msg)
		}
	}
	return out, nil
}

func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, e := range r.queue {
		if e.status != domain.OutboxStatusPending {
			continue
		}
		if stats.PendingCount == 0 {
			// Очередь упорядочена по постановке, первая pending-запись самая старая.
			stats.OldestPendingAt = e.createdAt
		}
		stats.PendingCount++
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.finish(id, domain.OutboxStatusSent)
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.finish(id, domain.OutboxStatusFailed)
}

func (r *OutboxRepository) finish(id string, status domain.OutboxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("mark outbox message %s as %s: %w", id, status, domain.ErrOutboxMessageNotFound)
	}
	e.status = status
	e.attempts++
	e.updatedAt = r.now()
	return nil
}

// DeleteProcessed удаляет до limit завершённых записей, обновлённых не позже before, от старых к новым.
func (r *OutboxRepository) DeleteProcessed(_ context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	r.queue = slices.DeleteFunc(r.queue, func(e *outboxEntry) bool {
		if deleted == limit || !e.status.Processed() || e.updatedAt.After(before) {
			return false
		}
		delete(r.byID, e.msg.ID)
		deleted++
		return true
	})
	return deleted, nil
}

// AllPending возвращает все pending-записи; удобно в тестах.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	pending, _ := r.PullPending(context.Background(), math.MaxInt)
	return pending
}

var (
	_ domain.OutboxRepository = (*OutboxRepository)(nil)
	_ domain.OutboxPruner     = (*OutboxRepository)(nil)
)

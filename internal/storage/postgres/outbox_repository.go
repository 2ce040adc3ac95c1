package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// defaultOutboxLease — на сколько PullPending закрепляет записи за воркером.
const defaultOutboxLease = 30 * time.Second

const (
	insertOutboxSQL = `
INSERT INTO outbox_messages (id, aggregate_type, aggregate_id, event_type, payload, status, attempt_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)`

	// claimOutboxSQL закрепляет порцию pending-записей и отдаёт её в порядке постановки.
	// Чужие строки пропускаются через SKIP LOCKED, просроченная аренда снова доступна.
	claimOutboxSQL = `
WITH picked AS (
    SELECT id
    FROM outbox_messages
    WHERE status = $1
      AND (locked_until IS NULL OR locked_until < NOW())
    ORDER BY created_at, id
    LIMIT $2
    FOR UPDATE SKIP LOCKED
), claimed AS (
    UPDATE outbox_messages o
    SET locked_until = NOW() + make_interval(secs => $3)
    FROM picked
    WHERE o.id = picked.id
    RETURNING o.id, o.aggregate_type, o.aggregate_id, o.event_type, o.payload, o.created_at
)
SELECT id, aggregate_type, aggregate_id, event_type, payload
FROM claimed
ORDER BY created_at, id`

	outboxStatsSQL = `SELECT COUNT(*), MIN(created_at) FROM outbox_messages WHERE status = $1`

	finishOutboxSQL = `
UPDATE outbox_messages
SET status = $2, attempt_count = attempt_count + 1, locked_until = NULL, updated_at = $3
WHERE id = $1`

	pruneOutboxSQL = `
DELETE FROM outbox_messages
WHERE id IN (
    SELECT id
    FROM outbox_messages
    WHERE status = ANY($1) AND updated_at <= $2
    ORDER BY updated_at, id
    LIMIT $3
    FOR UPDATE SKIP LOCKED
)`
)

type outboxRepository struct {
	db    *sql.DB
	lease time.Duration
	now   func() time.Time
}

// NewOutboxRepository создаёт PostgreSQL-реализацию outbox; она же реализует domain.OutboxPruner.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{
		db:    store.DB(),
		lease: defaultOutboxLease,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, insertOutboxSQL,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload,
		string(domain.OutboxStatusPending), r.now())
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message %s: %w", msg.ID, err)
	}
	return msg, nil
}

func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, claimOutboxSQL, string(domain.OutboxStatusPending), limit, r.lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim pending outbox messages: %w", err)
	}
	defer rows.Close()

	batch := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		var m domain.OutboxMessage
		if err := rows.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		batch = append(batch, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox messages: %w", err)
	}
	return batch, nil
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, outboxStatsSQL, string(domain.OutboxStatusPending)).Scan(&stats.PendingCount, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("query outbox stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.finish(ctx, id, domain.OutboxStatusSent)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.finish(ctx, id, domain.OutboxStatusFailed)
}

// finish снимает аренду и фиксирует итоговый статус записи.
func (r *outboxRepository) finish(ctx context.Context, id string, status domain.OutboxStatus) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, finishOutboxSQL, id, string(status), r.now())
	if err != nil {
		return fmt.Errorf("mark outbox message %s as %s: %w", id, status, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("mark outbox message %s as %s: %w", id, status, err)
	} else if n == 0 {
		return fmt.Errorf("mark outbox message %s as %s: %w", id, status, domain.ErrOutboxMessageNotFound)
	}
	return nil
}

func (r *outboxRepository) DeleteProcessed(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	processed := []string{string(domain.OutboxStatusSent), string(domain.OutboxStatusFailed)}
	res, err := r.db.ExecContext(ctx, pruneOutboxSQL, processed, before.UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("delete processed outbox messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete processed outbox messages: %w", err)
	}
	return int(n), nil
}

var (
	_ domain.OutboxRepository = (*outboxRepository)(nil)
	_ domain.OutboxPruner     = (*outboxRepository)(nil)
)

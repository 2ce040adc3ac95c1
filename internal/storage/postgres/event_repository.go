package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// ErrSequenceConflict — два писателя получили один номер события (нарушен UNIQUE(order_id, sequence)).
var ErrSequenceConflict = errors.New("order event sequence conflict")

type eventRepository struct {
	db *sql.DB
}

// NewEventRepository создаёт PostgreSQL-реализацию журнала событий.
func NewEventRepository(store *Store) domain.EventRepository {
	return &eventRepository{db: store.DB()}
}

// Append блокирует строку заказа (SELECT ... FOR UPDATE), чтобы писатели одного заказа
// получали номера последовательно.
func (r *eventRepository) Append(ctx context.Context, event domain.OrderEvent) (domain.OrderEvent, error) {
	if event.OrderID == "" {
		return domain.OrderEvent{}, domain.ErrOrderIDRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var lineItem []byte
	if event.LineItem != nil {
		encoded, err := json.Marshal(event.LineItem)
		if err != nil {
			return domain.OrderEvent{}, fmt.Errorf("encode line item: %w", err)
		}
		lineItem = encoded
	}

	event.ID = uuid.NewString()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		var locked string
		err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1 FOR UPDATE`, event.OrderID).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sequence), 0) + 1 FROM order_events WHERE order_id = $1`,
			event.OrderID,
		).Scan(&event.Sequence); err != nil {
			return fmt.Errorf("next event sequence: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_events (id, order_id, sequence, type, line_item, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`,
			event.ID, event.OrderID, event.Sequence, string(event.Type), lineItem, event.OccurredAt.UTC(),
		); err != nil {
			if isUniqueViolation(err) {
				return ErrSequenceConflict
			}
			return fmt.Errorf("insert order event: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.OrderEvent{}, err
	}

	return event, nil
}

func (r *eventRepository) FindByOrderID(ctx context.Context, orderID string) ([]domain.OrderEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, sequence, type, line_item, occurred_at
		FROM order_events
		WHERE order_id = $1
		ORDER BY sequence ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select order events: %w", err)
	}
	defer rows.Close()

	result := make([]domain.OrderEvent, 0)
	for rows.Next() {
		var (
			event      domain.OrderEvent
			eventType  string
			lineItem   []byte
			occurredAt time.Time
		)
		if err := rows.Scan(&event.ID, &event.OrderID, &event.Sequence, &eventType, &lineItem, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan order event: %w", err)
		}
		event.Type = domain.OrderEventType(eventType)
		event.OccurredAt = occurredAt.UTC()
		if len(lineItem) > 0 {
			event.LineItem = &domain.LineItem{}
			if err := json.Unmarshal(lineItem, event.LineItem); err != nil {
				return nil, fmt.Errorf("decode line item of event %s: %w", event.ID, err)
			}
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order events: %w", err)
	}
	return result, nil
}

var _ domain.EventRepository = (*eventRepository)(nil)

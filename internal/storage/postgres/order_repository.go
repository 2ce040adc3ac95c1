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

const (
	insertOrderSQL = `
INSERT INTO orders (id, account_number, status, shipping_address, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	// insertLineItemsSQL пишет все позиции заказа одной вставкой; массивы выровнены по индексу.
	insertLineItemsSQL = `
INSERT INTO order_line_items (order_id, position, name, product_id, quantity, price_minor, tax_minor)
SELECT $1, item.position, item.name, item.product_id, item.quantity, item.price_minor, item.tax_minor
FROM unnest($2::int[], $3::text[], $4::text[], $5::int[], $6::bigint[], $7::bigint[])
    AS item(position, name, product_id, quantity, price_minor, tax_minor)`

	// selectOrdersSQL отдаёт заказ вместе с позициями, собранными в JSON-массив по position.
	// Ключи объекта совпадают с json-тегами domain.LineItem.
	selectOrdersSQL = `
SELECT o.id, o.account_number, o.status, o.shipping_address, o.created_at, o.updated_at,
       COALESCE((
           SELECT json_agg(json_build_object(
                      'name', li.name,
                      'product_id', li.product_id,
                      'quantity', li.quantity,
                      'price_minor', li.price_minor,
                      'tax_minor', li.tax_minor) ORDER BY li.position)
           FROM order_line_items li
           WHERE li.order_id = o.id
       ), '[]'::json)
FROM orders o`

	getOrderSQL = selectOrdersSQL + `
WHERE o.id = $1`

	listOrdersByAccountSQL = selectOrdersSQL + `
WHERE o.account_number = $1
ORDER BY o.created_at, o.id`
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return domain.Order{}, fmt.Errorf("encode shipping address of order %s: %w", order.ID, err)
	}

	err = inTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, insertOrderSQL,
			order.ID, order.AccountNumber, string(order.Status), address,
			order.CreatedAt.UTC(), order.UpdatedAt.UTC())
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("create order %s: %w", order.ID, domain.ErrOrderAlreadyExists)
		case err != nil:
			return fmt.Errorf("insert order %s: %w", order.ID, err)
		}
		if len(order.LineItems) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, insertLineItemsSQL, lineItemColumns(order.ID, order.LineItems)...); err != nil {
			return fmt.Errorf("insert line items of order %s: %w", order.ID, err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order.Clone(), nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, getOrderSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order %s: %w", id, err)
	}
	return order, nil
}

func (r *orderRepository) ListByAccount(ctx context.Context, accountNumber string) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, listOrdersByAccountSQL, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("list orders of account %s: %w", accountNumber, err)
	}
	defer rows.Close()

	list := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		list = append(list, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return list, nil
}

// lineItemColumns раскладывает позиции по колоночным массивам для insertLineItemsSQL.
func lineItemColumns(orderID string, items []domain.LineItem) []any {
	var (
		positions  = make([]int32, len(items))
		names      = make([]string, len(items))
		products   = make([]string, len(items))
		quantities = make([]int32, len(items))
		prices     = make([]int64, len(items))
		taxes      = make([]int64, len(items))
	)
	for i, item := range items {
		positions[i] = int32(i)
		names[i] = item.Name
		products[i] = item.ProductID
		quantities[i] = item.Quantity
		prices[i] = item.PriceMinor
		taxes[i] = item.TaxMinor
	}
	return []any{orderID, positions, names, products, quantities, prices, taxes}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order     domain.Order
		status    string
		address   []byte
		items     []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&order.ID, &order.AccountNumber, &status, &address, &createdAt, &updatedAt, &items); err != nil {
		return domain.Order{}, err
	}
	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		return domain.Order{}, fmt.Errorf("decode shipping address of order %s: %w", order.ID, err)
	}
	var lineItems []domain.LineItem
	if err := json.Unmarshal(items, &lineItems); err != nil {
		return domain.Order{}, fmt.Errorf("decode line items of order %s: %w", order.ID, err)
	}
	if len(lineItems) > 0 {
		order.LineItems = lineItems
	}
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = createdAt.UTC()
	order.UpdatedAt = updatedAt.UTC()
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)

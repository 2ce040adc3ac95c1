package orders

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
	"github.com/vladislavdragonenkov/orders/internal/observability"
)

// Coordinator создаёт заказы на аккаунт вызывающего по умолчанию.
type Coordinator struct {
	directory domain.AccountDirectory
	orders    domain.OrderRepository
	metrics   *metrics.OrderMetrics
	logger    *log.Entry
	now       func() time.Time
}

// NewCoordinator создаёт координатор создания заказов.
func NewCoordinator(
	directory domain.AccountDirectory,
	orders domain.OrderRepository,
	orderMetrics *metrics.OrderMetrics,
	logger *log.Entry,
) *Coordinator {
	if logger == nil {
		logger = log.WithField("component", "order-coordinator")
	}
	return &Coordinator{
		directory: directory,
		orders:    orders,
		metrics:   orderMetrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder создаёт заказ на аккаунт вызывающего по умолчанию с первым адресом доставки.
// Если аккаунта по умолчанию нет, возвращает nil без ошибки: заказ не создаётся.
// Событий в журнал не пишет.
func (c *Coordinator) CreateOrder(ctx context.Context, caller domain.Caller, lineItems []domain.LineItem) (_ *domain.Order, err error) {
	ctx, span := observability.StartSpan(ctx, "orders.CreateOrder",
		attribute.Int("line_items", len(lineItems)),
	)
	defer func() { observability.EndSpan(span, err) }()

	logger := c.logger.WithFields(log.Fields{
		"operation": "create_order",
		"subject":   caller.Subject,
	})
	logger.Info("create order in business service")

	if errs := domain.ValidateLineItems(lineItems); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	accounts, err := c.directory.ListAccounts(ctx, caller)
	if err != nil {
		if !errors.Is(err, domain.ErrDirectoryUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrDirectoryUnavailable, err)
		}
		return nil, err
	}

	account, ok := domain.DefaultAccount(accounts)
	if !ok {
		logger.Warn("caller has no default account, order not created")
		c.metrics.RecordOrderNotCreated()
		return nil, nil
	}

	address, ok := account.FirstAddress(domain.AddressTypeShipping)
	if !ok {
		return nil, fmt.Errorf("%w: account %s", domain.ErrMissingShippingAddress, account.AccountNumber)
	}

	now := c.now()
	stored, err := c.orders.Create(ctx, domain.Order{
		AccountNumber:   account.AccountNumber,
		ShippingAddress: address,
		LineItems:       slices.Clone(lineItems),
		Status:          domain.OrderStatusPurchased,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}

	c.metrics.RecordOrderCreated()
	logger.WithFields(log.Fields{
		"order_id":       stored.ID,
		"account_number": stored.AccountNumber,
	}).Info("order created")

	return &stored, nil
}

package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
	"github.com/vladislavdragonenkov/orders/internal/observability"
	"github.com/vladislavdragonenkov/orders/internal/service/aggregate"
)

const defaultListConcurrency = 8

// QueryService читает заказы свёрткой журнала и дописывает события.
type QueryService struct {
	orders     domain.OrderRepository
	events     domain.EventRepository
	outbox     domain.OutboxRepository
	validator  OwnershipValidator
	aggregator *aggregate.Aggregator
	metrics    *metrics.OrderMetrics
	logger     *log.Entry

	readPolicy      ValidationPolicy
	writePolicy     ValidationPolicy
	listConcurrency int
}

// QueryOption настраивает QueryService.
type QueryOption func(*QueryService)

// WithListConcurrency ограничивает число заказов, сворачиваемых параллельно в GetOrdersForAccount.
func WithListConcurrency(n int) QueryOption {
	return func(s *QueryService) {
		if n > 0 {
			s.listConcurrency = n
		}
	}
}

// WithOutbox включает публикацию order.event_appended после каждого дописанного события.
func WithOutbox(outbox domain.OutboxRepository) QueryOption {
	return func(s *QueryService) {
		s.outbox = outbox
	}
}

// WithAggregator подменяет агрегатор (например, с другим терминальным предикатом).
func WithAggregator(aggregator *aggregate.Aggregator) QueryOption {
	return func(s *QueryService) {
		if aggregator != nil {
			s.aggregator = aggregator
		}
	}
}

// NewQueryService создаёт сервис чтения заказов.
func NewQueryService(
	orders domain.OrderRepository,
	events domain.EventRepository,
	validator OwnershipValidator,
	orderMetrics *metrics.OrderMetrics,
	logger *log.Entry,
	options ...QueryOption,
) *QueryService {
	if logger == nil {
		logger = log.WithField("component", "order-query")
	}
	s := &QueryService{
		orders:          orders,
		events:          events,
		validator:       validator,
		aggregator:      aggregate.New(),
		metrics:         orderMetrics,
		logger:          logger,
		readPolicy:      PolicyHide,
		writePolicy:     PolicySurface,
		listConcurrency: defaultListConcurrency,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// GetOrder возвращает текущее состояние заказа. При validate проверяет владение;
// непрошедшая проверка неотличима от отсутствия заказа.
func (s *QueryService) GetOrder(ctx context.Context, caller domain.Caller, orderID string, validate bool) (_ domain.Order, err error) {
	ctx, span := observability.StartSpan(ctx, "orders.GetOrder",
		attribute.String("order_id", orderID),
		attribute.Bool("validate", validate),
	)
	defer func() { observability.EndSpan(span, err) }()

	logger := s.logger.WithFields(log.Fields{
		"operation": "get_order",
		"order_id":  orderID,
	})
	logger.Info("get order in business service")

	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}

	base, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order %s: %w", orderID, err)
	}

	if validate {
		if verr := s.validator.Validate(ctx, caller, base.AccountNumber); verr != nil {
			logger.WithError(verr).WithField("account_number", base.AccountNumber).
				Warn("ownership check failed on read, order hidden")
			s.metrics.RecordHiddenRead()
			return domain.Order{}, s.readPolicy.resolve(orderID, verr)
		}
	}

	events, err := s.events.FindByOrderID(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load events of order %s: %w", orderID, err)
	}

	start := time.Now()
	result, err := s.aggregator.Fold(base, slices.Values(events))
	s.metrics.RecordAggregation(time.Since(start), result.Applied, result.Terminated)
	if err != nil {
		logger.WithError(err).Error("order event history cannot be folded")
		return domain.Order{}, err
	}

	return result.Order, nil
}

// AddOrderEvent дописывает событие в журнал заказа и возвращает его с назначенными ID и Sequence.
// При validate ошибка проверки владения возвращается вызывающему как есть. Свёртку не выполняет.
func (s *QueryService) AddOrderEvent(ctx context.Context, caller domain.Caller, event domain.OrderEvent, validate bool) (_ domain.OrderEvent, err error) {
	ctx, span := observability.StartSpan(ctx, "orders.AddOrderEvent",
		attribute.String("order_id", event.OrderID),
		attribute.String("event_type", string(event.Type)),
		attribute.Bool("validate", validate),
	)
	defer func() { observability.EndSpan(span, err) }()

	logger := s.logger.WithFields(log.Fields{
		"operation":  "add_order_event",
		"order_id":   event.OrderID,
		"event_type": event.Type,
	})
	logger.Info("add order event in business service")

	if err := event.Validate(); err != nil {
		return domain.OrderEvent{}, err
	}

	base, err := s.orders.Get(ctx, event.OrderID)
	if err != nil {
		return domain.OrderEvent{}, fmt.Errorf("load order %s: %w", event.OrderID, err)
	}

	if validate {
		if verr := s.validator.Validate(ctx, caller, base.AccountNumber); verr != nil {
			logger.WithError(verr).Warn("ownership check failed on write")
			return domain.OrderEvent{}, s.writePolicy.resolve(event.OrderID, verr)
		}
	}

	stored, err := s.events.Append(ctx, event)
	if err != nil {
		return domain.OrderEvent{}, fmt.Errorf("append event to order %s: %w", event.OrderID, err)
	}
	s.metrics.RecordEventAppended(string(stored.Type))

	s.enqueueEventAppended(ctx, logger, base.AccountNumber, stored)

	return stored, nil
}

func (s *QueryService) enqueueEventAppended(ctx context.Context, logger *log.Entry, accountNumber string, event domain.OrderEvent) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(kafka.NewOrderEventMessage(accountNumber, event))
	if err != nil {
		logger.WithError(err).Error("failed to encode outbox payload")
		return
	}
	if _, err := s.outbox.Enqueue(ctx, domain.NewEventAppendedMessage(event.OrderID, payload)); err != nil {
		logger.WithError(err).Error("failed to enqueue outbox message")
	}
}

// GetOrdersForAccount возвращает заказы аккаунта в порядке хранилища. Владение аккаунтом
// проверяется один раз и ошибка возвращается; заказы, скрытые при чтении, пропускаются.
func (s *QueryService) GetOrdersForAccount(ctx context.Context, caller domain.Caller, accountNumber string) (_ []domain.Order, err error) {
	ctx, span := observability.StartSpan(ctx, "orders.GetOrdersForAccount",
		attribute.String("account_number", accountNumber),
	)
	defer func() { observability.EndSpan(span, err) }()

	logger := s.logger.WithFields(log.Fields{
		"operation":      "get_orders_for_account",
		"account_number": accountNumber,
	})
	logger.Info("get orders for account in business service")

	if err := s.validator.Validate(ctx, caller, accountNumber); err != nil {
		return nil, err
	}

	list, err := s.orders.ListByAccount(ctx, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("list orders of account %s: %w", accountNumber, err)
	}

	results := make([]domain.Order, len(list))
	found := make([]bool, len(list))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.listConcurrency)
	for i, order := range list {
		g.Go(func() error {
			current, err := s.GetOrder(gctx, caller, order.ID, true)
			if errors.Is(err, domain.ErrOrderNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = current
			found[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.Order, 0, len(results))
	for i, order := range results {
		if found[i] {
			out = append(out, order)
		}
	}
	logger.WithField("count", len(out)).Debug("orders for account aggregated")
	return out, nil
}

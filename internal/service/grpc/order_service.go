// Package grpcsvc реализует gRPC API orders.v1.OrderService поверх бизнес-сервисов заказов.
package grpcsvc

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ordersv1 "github.com/vladislavdragonenkov/orders/api/orders/v1"
	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// OrderCreator создаёт заказы на аккаунт вызывающего.
type OrderCreator interface {
	CreateOrder(ctx context.Context, caller domain.Caller, lineItems []domain.LineItem) (*domain.Order, error)
}

// OrderQueries читает заказы и пишет события в их журнал.
type OrderQueries interface {
	GetOrder(ctx context.Context, caller domain.Caller, orderID string, validate bool) (domain.Order, error)
	AddOrderEvent(ctx context.Context, caller domain.Caller, event domain.OrderEvent, validate bool) (domain.OrderEvent, error)
	GetOrdersForAccount(ctx context.Context, caller domain.Caller, accountNumber string) ([]domain.Order, error)
}

// OrderService реализует gRPC API. Внешние вызовы всегда проходят проверку владения.
type OrderService struct {
	ordersv1.UnimplementedOrderServiceServer

	creator OrderCreator
	queries OrderQueries
	logger  *log.Entry
}

// NewOrderService конструирует сервис с зависимостями.
func NewOrderService(creator OrderCreator, queries OrderQueries, logger *log.Entry) *OrderService {
	if logger == nil {
		logger = log.WithField("component", "order-grpc")
	}
	return &OrderService{
		creator: creator,
		queries: queries,
		logger:  logger,
	}
}

// CreateOrder создаёт заказ. Пустой ответ означает, что у вызывающего нет аккаунта по умолчанию.
func (s *OrderService) CreateOrder(ctx context.Context, req *ordersv1.CreateOrderRequest) (*ordersv1.CreateOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	items, err := lineItemsFromRequest(req.LineItems)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	order, err := s.creator.CreateOrder(ctx, caller, items)
	if err != nil {
		return nil, s.toStatus(err, sourceRequest, log.Fields{"operation": "create_order"})
	}
	if order == nil {
		return &ordersv1.CreateOrderResponse{}, nil
	}
	return &ordersv1.CreateOrderResponse{Order: toProtoOrder(*order)}, nil
}

// GetOrder возвращает агрегированное состояние заказа вызывающего.
func (s *OrderService) GetOrder(ctx context.Context, req *ordersv1.GetOrderRequest) (*ordersv1.GetOrderResponse, error) {
	orderID := strings.TrimSpace(req.GetOrderId())
	if orderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	order, err := s.queries.GetOrder(ctx, caller, orderID, true)
	if err != nil {
		return nil, s.toStatus(err, sourceHistory, log.Fields{"operation": "get_order", "order_id": orderID})
	}
	return &ordersv1.GetOrderResponse{Order: toProtoOrder(order)}, nil
}

// AddOrderEvent дописывает событие в журнал заказа вызывающего.
func (s *OrderService) AddOrderEvent(ctx context.Context, req *ordersv1.AddOrderEventRequest) (*ordersv1.AddOrderEventResponse, error) {
	if req.GetEvent() == nil {
		return nil, status.Error(codes.InvalidArgument, "event is required")
	}
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	event := eventFromProto(req.Event)
	stored, err := s.queries.AddOrderEvent(ctx, caller, event, true)
	if err != nil {
		fields := log.Fields{"operation": "add_order_event", "order_id": event.OrderID}
		if errors.Is(err, domain.ErrUnknownEventType) {
			return nil, status.Errorf(codes.InvalidArgument, "%v: %q", err, req.Event.Type)
		}
		return nil, s.toStatus(err, sourceRequest, fields)
	}
	return &ordersv1.AddOrderEventResponse{Event: toProtoEvent(stored)}, nil
}

// ListAccountOrders возвращает заказы аккаунта, принадлежащего вызывающему.
func (s *OrderService) ListAccountOrders(ctx context.Context, req *ordersv1.ListAccountOrdersRequest) (*ordersv1.ListAccountOrdersResponse, error) {
	accountNumber := strings.TrimSpace(req.GetAccountNumber())
	if accountNumber == "" {
		return nil, status.Error(codes.InvalidArgument, "account_number is required")
	}
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	list, err := s.queries.GetOrdersForAccount(ctx, caller, accountNumber)
	if err != nil {
		return nil, s.toStatus(err, sourceHistory, log.Fields{
			"operation":      "list_account_orders",
			"account_number": accountNumber,
		})
	}

	result := make([]*ordersv1.Order, 0, len(list))
	for _, order := range list {
		result = append(result, toProtoOrder(order))
	}
	return &ordersv1.ListAccountOrdersResponse{Orders: result}, nil
}

var _ ordersv1.OrderServiceServer = (*OrderService)(nil)

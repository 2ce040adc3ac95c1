package integration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/orders/internal/clients/accounts"
	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
	"github.com/vladislavdragonenkov/orders/internal/service/orders"
	"github.com/vladislavdragonenkov/orders/internal/service/outbox"
	"github.com/vladislavdragonenkov/orders/internal/service/ownership"
	"github.com/vladislavdragonenkov/orders/internal/storage/memory"
)

// recordingPublisher запоминает опубликованные сообщения вместо отправки в Kafka.
type recordingPublisher struct {
	mu       sync.Mutex
	messages []domain.OutboxMessage
}

func (p *recordingPublisher) Publish(message domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
	return nil
}

func (p *recordingPublisher) published() []domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OutboxMessage(nil), p.messages...)
}

// OrderLifecycleTestSuite прогоняет заказ от создания до доставки через все слои сервиса.
type OrderLifecycleTestSuite struct {
	suite.Suite

	directory   *accounts.MockDirectory
	orderRepo   domain.OrderRepository
	events      domain.EventRepository
	outboxRepo  *memory.OutboxRepository
	coordinator *orders.Coordinator
	queries     *orders.QueryService
	fulfillment *orders.FulfillmentHandler
	worker      *outbox.Worker
	publisher   *recordingPublisher

	alice domain.Caller
	bob   domain.Caller
}

func (s *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	s.directory = accounts.NewMockDirectory()
	s.directory.BySubject = map[string][]domain.Account{
		"alice": {
			{AccountNumber: "A000"},
			{
				AccountNumber:  "A001",
				DefaultAccount: true,
				Addresses: []domain.Address{
					{Street1: "1 Billing Rd", AddressType: domain.AddressTypeBilling},
					{Street1: "42 Elm St", City: "Springfield", AddressType: domain.AddressTypeShipping},
				},
			},
		},
		"bob": {
			{AccountNumber: "B001", DefaultAccount: true, Addresses: []domain.Address{
				{Street1: "9 Oak Ave", AddressType: domain.AddressTypeShipping},
			}},
		},
	}
	s.alice = domain.Caller{Subject: "alice", Token: "alice-token"}
	s.bob = domain.Caller{Subject: "bob", Token: "bob-token"}

	s.orderRepo = memory.NewOrderRepository()
	s.events = memory.NewEventRepository()
	s.outboxRepo = memory.NewOutboxRepository()

	m := metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())
	s.coordinator = orders.NewCoordinator(s.directory, s.orderRepo, m, logger)
	s.queries = orders.NewQueryService(
		s.orderRepo,
		s.events,
		ownership.NewValidator(s.directory, m, logger),
		m,
		logger,
		orders.WithOutbox(s.outboxRepo),
		orders.WithListConcurrency(2),
	)
	s.fulfillment = orders.NewFulfillmentHandler(s.queries, logger)

	s.publisher = &recordingPublisher{}
	s.worker = outbox.NewWorker(s.outboxRepo, s.publisher, outbox.WithLogger(logger))
}

func (s *OrderLifecycleTestSuite) addEvent(orderID string, eventType domain.OrderEventType, item *domain.LineItem) {
	_, err := s.queries.AddOrderEvent(context.Background(), s.alice, domain.OrderEvent{
		OrderID:  orderID,
		Type:     eventType,
		LineItem: item,
	}, true)
	s.Require().NoError(err)
}

func (s *OrderLifecycleTestSuite) TestDefaultAccountOrderIsDelivered() {
	ctx := context.Background()

	created, err := s.coordinator.CreateOrder(ctx, s.alice, []domain.LineItem{
		{Name: "Pen", ProductID: "pen", Quantity: 2, PriceMinor: 150},
	})
	s.Require().NoError(err)
	s.Require().NotNil(created)
	s.Equal("A001", created.AccountNumber)
	s.Equal("42 Elm St", created.ShippingAddress.Street1)
	s.Equal(domain.OrderStatusPurchased, created.Status)

	s.addEvent(created.ID, domain.OrderEventCreated, nil)
	s.addEvent(created.ID, domain.OrderEventLineItemAdded, &domain.LineItem{Name: "Cup", ProductID: "cup", Quantity: 1, PriceMinor: 500})
	s.addEvent(created.ID, domain.OrderEventOrdered, nil)

	// Склад подтверждает отгрузку и доставку через топик исполнения.
	for _, eventType := range []string{"SHIPPED", "DELIVERED"} {
		value, err := json.Marshal(map[string]string{"order_id": created.ID, "type": eventType})
		s.Require().NoError(err)
		s.Require().NoError(s.fulfillment.Handle(ctx, &sarama.ConsumerMessage{
			Topic: kafka.TopicFulfillment,
			Value: value,
		}))
	}

	// После DELIVERED журнал можно дописывать, но на состояние это не влияет.
	s.addEvent(created.ID, domain.OrderEventLineItemAdded, &domain.LineItem{Name: "Late", ProductID: "late", Quantity: 1})

	order, err := s.queries.GetOrder(ctx, s.alice, created.ID, true)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusDelivered, order.Status)
	s.False(order.ShippedAt.IsZero())
	s.False(order.DeliveredAt.IsZero())
	s.Equal(int64(5), order.LastEventSequence)

	products := make([]string, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		products = append(products, item.ProductID)
	}
	s.ElementsMatch([]string{"pen", "cup"}, products)

	s.Equal(6, s.worker.ProcessOnce(ctx))
	s.Empty(s.outboxRepo.AllPending())

	published := s.publisher.published()
	s.Require().Len(published, 6)
	for _, message := range published {
		s.Equal(domain.OutboxEventOrderEventAppended, message.EventType)
		s.Equal(created.ID, message.AggregateID)
	}
}

func (s *OrderLifecycleTestSuite) TestForeignCallerCannotSeeOrWriteOrder() {
	ctx := context.Background()

	created, err := s.coordinator.CreateOrder(ctx, s.alice, []domain.LineItem{{Name: "Pen", ProductID: "pen", Quantity: 1}})
	s.Require().NoError(err)
	s.Require().NotNil(created)

	_, err = s.queries.GetOrder(ctx, s.bob, created.ID, true)
	s.ErrorIs(err, domain.ErrOrderNotFound)

	_, err = s.queries.AddOrderEvent(ctx, s.bob, domain.OrderEvent{OrderID: created.ID, Type: domain.OrderEventCanceled}, true)
	s.ErrorIs(err, domain.ErrAccountNotOwned)

	_, err = s.queries.GetOrdersForAccount(ctx, s.bob, "A001")
	s.ErrorIs(err, domain.ErrAccountNotOwned)

	events, err := s.events.FindByOrderID(ctx, created.ID)
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *OrderLifecycleTestSuite) TestCallerWithoutDefaultAccountCreatesNothing() {
	ctx := context.Background()
	nobody := domain.Caller{Subject: "nobody"}

	created, err := s.coordinator.CreateOrder(ctx, nobody, []domain.LineItem{{Name: "Pen", ProductID: "pen", Quantity: 1}})
	s.Require().NoError(err)
	s.Nil(created)

	listed, err := s.orderRepo.ListByAccount(ctx, "A001")
	s.Require().NoError(err)
	s.Empty(listed)
}

func (s *OrderLifecycleTestSuite) TestAccountListingFoldsEveryOrder() {
	ctx := context.Background()

	first, err := s.coordinator.CreateOrder(ctx, s.alice, []domain.LineItem{{Name: "Pen", ProductID: "pen", Quantity: 1}})
	s.Require().NoError(err)
	second, err := s.coordinator.CreateOrder(ctx, s.alice, []domain.LineItem{{Name: "Cup", ProductID: "cup", Quantity: 1}})
	s.Require().NoError(err)

	s.addEvent(second.ID, domain.OrderEventCanceled, nil)

	listed, err := s.queries.GetOrdersForAccount(ctx, s.alice, "A001")
	s.Require().NoError(err)
	s.Require().Len(listed, 2)
	s.Equal(first.ID, listed[0].ID)
	s.Equal(domain.OrderStatusPurchased, listed[0].Status)
	s.Equal(second.ID, listed[1].ID)
	s.Equal(domain.OrderStatusCanceled, listed[1].Status)
}

func (s *OrderLifecycleTestSuite) TestDirectoryOutageHidesReadsAndFailsWrites() {
	ctx := context.Background()

	created, err := s.coordinator.CreateOrder(ctx, s.alice, []domain.LineItem{{Name: "Pen", ProductID: "pen", Quantity: 1}})
	s.Require().NoError(err)

	s.directory.SetErr(domain.ErrDirectoryUnavailable)

	_, err = s.queries.GetOrder(ctx, s.alice, created.ID, true)
	s.ErrorIs(err, domain.ErrOrderNotFound)

	_, err = s.queries.AddOrderEvent(ctx, s.alice, domain.OrderEvent{OrderID: created.ID, Type: domain.OrderEventOrdered}, true)
	s.ErrorIs(err, domain.ErrDirectoryUnavailable)

	// Внутренние вызовы без проверки владения справочник не трогают.
	order, err := s.queries.GetOrder(ctx, s.alice, created.ID, false)
	s.Require().NoError(err)
	s.Equal(created.ID, order.ID)
}

func TestOrderLifecycleTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("integration suite is skipped in short mode")
	}
	suite.Run(t, new(OrderLifecycleTestSuite))
}

package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты проверки владения аккаунтом.
const (
	OwnershipResultOwned       = "owned"
	OwnershipResultNotOwned    = "not_owned"
	OwnershipResultUnavailable = "unavailable"
)

// OrderMetrics содержит метрики ядра заказов.
type OrderMetrics struct {
	ordersCreated    prometheus.Counter
	ordersNotCreated prometheus.Counter
	eventsAppended   *prometheus.CounterVec
	ownershipChecks  *prometheus.CounterVec
	hiddenReads      prometheus.Counter

	// Свёртка журнала
	aggregationDuration prometheus.Histogram
	eventsFolded        prometheus.Histogram
	terminatedFolds     prometheus.Counter
}

// NewOrderMetricsWithRegisterer создаёт метрики в заданном реестре (удобно для тестов).
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created",
		}),
		ordersNotCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_not_created_total",
			Help: "Total number of create requests skipped because the caller has no default account",
		}),
		eventsAppended: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_events_appended_total",
			Help: "Total number of order events appended grouped by type",
		}, []string{"type"}),
		ownershipChecks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_ownership_checks_total",
			Help: "Total number of account ownership checks grouped by result",
		}, []string{"result"}),
		hiddenReads: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_hidden_reads_total",
			Help: "Total number of reads answered as not found because ownership validation failed",
		}),
		aggregationDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "orders_aggregation_duration_seconds",
			Help:    "Duration of order event log aggregation in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		eventsFolded: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "orders_aggregation_events_applied",
			Help:    "Number of events applied per aggregation",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		terminatedFolds: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_aggregation_terminated_total",
			Help: "Total number of aggregations stopped on a terminal event",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// Все Record* методы безопасны для nil-получателя: сервисы в тестах создаются без метрик.

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordOrderNotCreated фиксирует мягкий отказ (нет аккаунта по умолчанию).
func (m *OrderMetrics) RecordOrderNotCreated() {
	if m == nil {
		return
	}
	m.ordersNotCreated.Inc()
}

// RecordEventAppended увеличивает счётчик событий заданного типа.
func (m *OrderMetrics) RecordEventAppended(eventType string) {
	if m == nil {
		return
	}
	m.eventsAppended.WithLabelValues(eventType).Inc()
}

// RecordOwnershipCheck учитывает результат проверки владения.
func (m *OrderMetrics) RecordOwnershipCheck(result string) {
	if m == nil {
		return
	}
	m.ownershipChecks.WithLabelValues(result).Inc()
}

// RecordHiddenRead учитывает чтение, скрытое политикой read-path.
func (m *OrderMetrics) RecordHiddenRead() {
	if m == nil {
		return
	}
	m.hiddenReads.Inc()
}

// RecordAggregation записывает длительность и объём свёртки.
func (m *OrderMetrics) RecordAggregation(duration time.Duration, applied int, terminated bool) {
	if m == nil {
		return
	}
	m.aggregationDuration.Observe(duration.Seconds())
	m.eventsFolded.Observe(float64(applied))
	if terminated {
		m.terminatedFolds.Inc()
	}
}

// Package aggregate восстанавливает текущее состояние заказа сверткой журнала событий.
package aggregate

import (
	"fmt"
	"iter"
	"slices"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// ApplyFunc применяет одно событие к аккумулятору. Функция не должна удерживать
// ссылки на event.LineItem: аккумулятор владеет своими данными.
type ApplyFunc func(order *domain.Order, event domain.OrderEvent) error

// TerminalFunc сообщает, является ли тип события терминальным. Терминальное событие
// применяется, после него свёртка останавливается.
type TerminalFunc func(domain.OrderEventType) bool

// DeliveredIsTerminal — предикат по умолчанию: DELIVERED поглощает всё, что идёт следом.
func DeliveredIsTerminal(t domain.OrderEventType) bool {
	return t == domain.OrderEventDelivered
}

// Result — итог свёртки вместе со служебными счётчиками.
type Result struct {
	Order   domain.Order
	Applied int
	// Terminated выставляется, если свёртка остановилась на терминальном событии.
	Terminated bool
}

// Aggregator — чистая функция (base, events) -> order. Безопасен для конкурентного использования.
type Aggregator struct {
	terminal TerminalFunc
	appliers map[domain.OrderEventType]ApplyFunc
}

// Option настраивает Aggregator.
type Option func(*Aggregator)

// WithTerminal заменяет предикат терминального состояния.
func WithTerminal(fn TerminalFunc) Option {
	return func(a *Aggregator) {
		if fn != nil {
			a.terminal = fn
		}
	}
}

// WithApplier регистрирует (или переопределяет) обработчик типа события.
func WithApplier(eventType domain.OrderEventType, fn ApplyFunc) Option {
	return func(a *Aggregator) {
		if fn != nil {
			a.appliers[eventType] = fn
		}
	}
}

// New создаёт агрегатор со стандартными обработчиками.
func New(options ...Option) *Aggregator {
	a := &Aggregator{
		terminal: DeliveredIsTerminal,
		appliers: defaultAppliers(),
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Aggregate сворачивает события поверх base и возвращает текущее состояние заказа.
func (a *Aggregator) Aggregate(base domain.Order, events iter.Seq[domain.OrderEvent]) (domain.Order, error) {
	result, err := a.Fold(base, events)
	if err != nil {
		return domain.Order{}, err
	}
	return result.Order, nil
}

// AggregateSlice — Aggregate для уже загруженного среза событий.
func (a *Aggregator) AggregateSlice(base domain.Order, events []domain.OrderEvent) (domain.Order, error) {
	return a.Aggregate(base, slices.Values(events))
}

// Fold выполняет свёртку. События потребляются по одному; после терминального события
// итерация прекращается, хвост последовательности не читается.
func (a *Aggregator) Fold(base domain.Order, events iter.Seq[domain.OrderEvent]) (Result, error) {
	acc := base.Clone()
	result := Result{}
	prev := base.LastEventSequence

	if events == nil {
		result.Order = acc
		return result, nil
	}

	for event := range events {
		if event.OrderID != base.ID {
			return Result{}, fmt.Errorf("%w: event %q belongs to order %q, expected %q",
				domain.ErrInvalidInput, event.ID, event.OrderID, base.ID)
		}
		if event.Sequence <= prev {
			return Result{}, fmt.Errorf("%w: event sequence %d is not after %d",
				domain.ErrInvalidInput, event.Sequence, prev)
		}

		apply, ok := a.appliers[event.Type]
		if !ok {
			return Result{}, fmt.Errorf("%w: %q (event %q, sequence %d)",
				domain.ErrUnknownEventType, event.Type, event.ID, event.Sequence)
		}
		if err := apply(&acc, event); err != nil {
			return Result{}, fmt.Errorf("apply %s event at sequence %d: %w", event.Type, event.Sequence, err)
		}

		acc.LastEventSequence = event.Sequence
		if !event.OccurredAt.IsZero() {
			acc.UpdatedAt = event.OccurredAt
		}
		prev = event.Sequence
		result.Applied++

		if a.terminal(event.Type) {
			result.Terminated = true
			break
		}
	}

	result.Order = acc
	return result, nil
}

// Package outbox доставляет сообщения transactional outbox о событиях заказов в брокер
// и чистит уже обработанные записи.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 5 * time.Second
)

var (
	relayOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_outbox_relay_total",
		Help: "Outbox messages handled by the relay grouped by event type and outcome.",
	}, []string{"event_type", "outcome"})
	relayRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_outbox_publish_retries_total",
		Help: "Publish retries performed before a message was sent or given up.",
	})
	backlogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orders_outbox_pending_records",
		Help: "Current number of pending records in transactional outbox.",
	})
	backlogOldestAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orders_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending outbox record.",
	})
)

const (
	outcomeSent           = "sent"
	outcomeDeadLettered   = "dead_lettered"
	outcomeDeadLetterLost = "dead_letter_failed"
)

// Option настраивает Worker. Недопустимые значения игнорируются, остаётся значение по умолчанию.
type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDLQPublisher задаёт получателя сообщений, которые не удалось опубликовать за maxAttempts попыток.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается до maxRetryDelay.
// Ноль отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) {
		if delay >= 0 {
			w.retryDelay = delay
		}
	}
}

// Worker переносит сообщения order.event_appended из outbox в брокер.
// Доставка at-least-once: сообщение помечается sent только после успешной публикации.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	logger    *log.Entry

	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	retryDelay   time.Duration
}

func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	w := &Worker{
		repo:         repo,
		publisher:    publisher,
		logger:       log.WithField("component", "outbox-worker"),
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		retryDelay:   defaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run опрашивает outbox каждые PollInterval до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	w.logger.WithFields(log.Fields{
		"poll_interval": w.pollInterval,
		"batch_size":    w.batchSize,
		"max_attempts":  w.maxAttempts,
	}).Info("outbox worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.drain(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// drain забирает батчи, пока они приходят полными.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil && w.ProcessOnce(ctx) >= w.batchSize {
	}
}

// ProcessOnce обрабатывает один батч и возвращает число опубликованных сообщений.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer w.observeBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return 0
	}

	published := 0
	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		if w.relay(ctx, msg) {
			published++
		}
	}

	if published > 0 {
		w.logger.WithFields(log.Fields{
			"published": published,
			"pulled":    len(batch),
		}).Debug("outbox batch relayed")
	}
	return published
}

// relay публикует одно сообщение и фиксирует результат в outbox. Возвращает true, если сообщение отправлено.
func (w *Worker) relay(ctx context.Context, msg domain.OutboxMessage) bool {
	logger := w.logger.WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"order_id":   msg.AggregateID,
		"event_type": msg.EventType,
	})

	publishErr := w.publish(ctx, msg)
	if publishErr == nil {
		relayOutcomes.WithLabelValues(msg.EventType, outcomeSent).Inc()
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			logger.WithError(err).Warn("outbox message published but not marked as sent")
		}
		return true
	}
	if ctx.Err() != nil {
		// Остановка посреди ретраев: сообщение остаётся pending и уйдёт в следующий запуск.
		return false
	}

	logger.WithError(publishErr).Error("outbox publish failed after retries")
	outcome := outcomeDeadLettered
	if err := w.deadLetter(msg, publishErr); err != nil {
		logger.WithError(err).Warn("failed to publish outbox message to DLQ")
		outcome = outcomeDeadLetterLost
	}
	relayOutcomes.WithLabelValues(msg.EventType, outcome).Inc()

	if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
		logger.WithError(err).Warn("failed to mark outbox message as failed")
	}
	return false
}

func (w *Worker) publish(ctx context.Context, msg domain.OutboxMessage) error {
	_, err := backoff.Retry(ctx,
		func() (struct{}, error) {
			return struct{}{}, w.publisher.Publish(msg)
		},
		backoff.WithBackOff(w.newBackOff()),
		backoff.WithMaxTries(uint(w.maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			relayRetries.Inc()
			w.logger.WithError(err).WithFields(log.Fields{
				"outbox_id": msg.ID,
				"retry_in":  next,
			}).Debug("outbox publish attempt failed")
		}),
	)
	if err != nil {
		return fmt.Errorf("publish outbox message %s after %d attempts: %w", msg.ID, w.maxAttempts, err)
	}
	return nil
}

// newBackOff строит паузы между попытками: base, 2*base, 4*base... без джиттера, не больше maxRetryDelay.
func (w *Worker) newBackOff() backoff.BackOff {
	if w.retryDelay <= 0 {
		return &backoff.ZeroBackOff{}
	}
	return &backoff.ExponentialBackOff{
		InitialInterval:     w.retryDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         max(maxRetryDelay, w.retryDelay),
	}
}

// deadLetterRecord — тело сообщения в DLQ: исходное событие и причина отказа.
type deadLetterRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	OrderID       string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	FailedAt      time.Time       `json:"dlq_published_at"`
}

func (w *Worker) deadLetter(msg domain.OutboxMessage, publishErr error) error {
	if w.dlq == nil {
		return nil
	}

	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		quoted, _ := json.Marshal(string(msg.Payload))
		payload = quoted
	}
	body, err := json.Marshal(deadLetterRecord{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		OrderID:       msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishError:  publishErr.Error(),
		FailedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq record: %w", err)
	}

	dead := msg
	dead.Payload = body
	if err := w.dlq.Publish(dead); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

func (w *Worker) observeBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	backlogSize.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		backlogOldestAge.Set(0)
		return
	}
	backlogOldestAge.Set(max(time.Since(stats.OldestPendingAt).Seconds(), 0))
}

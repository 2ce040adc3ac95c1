package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

const (
	defaultRetentionInterval   = 10 * time.Minute
	defaultRetentionPeriod     = 24 * time.Hour
	defaultRetentionBatchSize  = 500
	defaultRetentionMaxBatches = 100
)

var (
	pruneRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_outbox_prune_runs_total",
		Help: "Outbox retention passes by outcome (ok, error, truncated).",
	}, []string{"outcome"})
	prunedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_outbox_pruned_total",
		Help: "Processed outbox records removed by retention.",
	})
	pruneDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orders_outbox_prune_duration_seconds",
		Help:    "Duration of one outbox retention pass.",
		Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
	})
)

type RetentionOption func(*RetentionWorker)

func WithRetentionLogger(logger *log.Entry) RetentionOption {
	return func(w *RetentionWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithRetentionInterval задаёт паузу между проходами очистки.
func WithRetentionInterval(interval time.Duration) RetentionOption {
	return func(w *RetentionWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithRetentionPeriod задаёт, сколько обработанные сообщения живут после отправки или отказа.
// Ноль удаляет всё обработанное к моменту прохода.
func WithRetentionPeriod(period time.Duration) RetentionOption {
	return func(w *RetentionWorker) {
		if period >= 0 {
			w.maxAge = period
		}
	}
}

func WithRetentionBatchSize(size int) RetentionOption {
	return func(w *RetentionWorker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithRetentionMaxBatches ограничивает число порций за один проход; остаток дочищает следующий проход.
func WithRetentionMaxBatches(n int) RetentionOption {
	return func(w *RetentionWorker) {
		if n > 0 {
			w.maxBatches = n
		}
	}
}

// RetentionWorker удаляет отправленные и упавшие сообщения outbox старше периода хранения.
// Pending-сообщения не трогает: их судьбу решает Worker.
type RetentionWorker struct {
	pruner     domain.OutboxPruner
	logger     *log.Entry
	interval   time.Duration
	maxAge     time.Duration
	batchSize  int
	maxBatches int
	now        func() time.Time
}

func NewRetentionWorker(pruner domain.OutboxPruner, opts ...RetentionOption) *RetentionWorker {
	w := &RetentionWorker{
		pruner:     pruner,
		logger:     log.WithField("component", "outbox-retention"),
		interval:   defaultRetentionInterval,
		maxAge:     defaultRetentionPeriod,
		batchSize:  defaultRetentionBatchSize,
		maxBatches: defaultRetentionMaxBatches,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run выполняет проход сразу и затем каждые interval до отмены ctx.
func (w *RetentionWorker) Run(ctx context.Context) {
	if w.pruner == nil {
		w.logger.Warn("outbox retention worker is disabled: pruner is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		w.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *RetentionWorker) runOnce(ctx context.Context) {
	started := time.Now()
	deleted, err := w.Prune(ctx)
	pruneDuration.Observe(time.Since(started).Seconds())

	entry := w.logger.WithField("deleted", deleted)
	switch {
	case errors.Is(err, context.Canceled):
	case errors.Is(err, errPruneTruncated):
		pruneRuns.WithLabelValues("truncated").Inc()
		entry.Info("outbox retention pass hit the batch limit")
	case err != nil:
		pruneRuns.WithLabelValues("error").Inc()
		entry.WithError(err).Warn("outbox retention pass failed")
	default:
		pruneRuns.WithLabelValues("ok").Inc()
		if deleted > 0 {
			entry.Info("outbox retention pass completed")
		}
	}
}

var errPruneTruncated = errors.New("outbox retention pass truncated")

// Prune удаляет порциями всё обработанное раньше now-maxAge. Проход заканчивается на неполной
// порции; если порции всё ещё полные после maxBatches, возвращается errPruneTruncated.
func (w *RetentionWorker) Prune(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.maxAge)

	total := 0
	for range w.maxBatches {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := w.pruner.DeleteProcessed(ctx, cutoff, w.batchSize)
		total += n
		prunedRecords.Add(float64(n))
		if err != nil {
			return total, err
		}
		if n < w.batchSize {
			return total, nil
		}
	}
	return total, errPruneTruncated
}

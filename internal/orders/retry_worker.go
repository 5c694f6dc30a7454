package orders

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
)

// RetryWorkerConfig configures C14's polling cadence and lease budget.
type RetryWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	LeaseTTL     time.Duration
	LeaseOwner   string
}

// RetryMetrics tracks the counters §4.14 step 4 names.
type RetryMetrics struct {
	Attempted int64
	Succeeded int64
	Failed    int64
}

// SuccessRatePct returns retries_succeeded / retries_attempted as a percentage.
func (m RetryMetrics) SuccessRatePct() float64 {
	if m.Attempted == 0 {
		return 0
	}
	return float64(m.Succeeded) / float64(m.Attempted) * 100
}

// RetryWorker is C14: a single background loop with bounded concurrency
// via order leases, grounded on the teacher pack's lease-and-backoff
// outbox retry shape.
type RetryWorker struct {
	store    ports.OrderStore
	signals  ports.SignalLog
	executor *Executor
	cfg      RetryWorkerConfig

	metrics RetryMetrics
}

// NewRetryWorker builds a RetryWorker over the order store and executor.
func NewRetryWorker(store ports.OrderStore, signals ports.SignalLog, executor *Executor, cfg RetryWorkerConfig) *RetryWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	if cfg.LeaseOwner == "" {
		cfg.LeaseOwner = "retry-worker-" + domain.NewID()
	}
	return &RetryWorker{store: store, signals: signals, executor: executor, cfg: cfg}
}

// Start runs the poll loop until ctx is cancelled.
func (w *RetryWorker) Start(ctx context.Context) {
	interval := w.cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.runCycle(ctx)
			}
		}
	}()
}

// Metrics returns a snapshot of the running counters.
func (w *RetryWorker) Metrics() RetryMetrics { return w.metrics }

func (w *RetryWorker) runCycle(ctx context.Context) {
	candidates, err := w.store.GetPendingRetries(ctx, w.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("retry worker: failed to fetch pending retries")
		return
	}
	sortExitsFirst(candidates)

	for _, order := range candidates {
		select {
		case <-ctx.Done():
			return
		default:
		}
		w.processOne(ctx, order)
	}
}

// sortExitsFirst enforces "exits always outrank entries" (§4.14 step 1):
// Exit-kind orders sort before Entry-kind, then ascending next_retry_at.
func sortExitsFirst(orders []*domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].Kind != orders[j].Kind {
			return orders[i].Kind == domain.KindExit
		}
		return orders[i].NextRetryAt.Before(orders[j].NextRetryAt)
	})
}

func (w *RetryWorker) processOne(ctx context.Context, order *domain.Order) {
	acquired, err := w.store.AcquireLease(ctx, order.ID, w.cfg.LeaseOwner, w.cfg.LeaseTTL)
	if err != nil {
		log.Error().Err(err).Str("order_id", order.ID).Msg("retry worker: lease acquisition error")
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := w.store.ReleaseLease(ctx, order.ID); err != nil {
			log.Error().Err(err).Str("order_id", order.ID).Msg("retry worker: failed to release lease")
		}
	}()

	if order.AttemptCount >= order.MaxAttempts {
		w.exhaust(ctx, order)
		return
	}

	if order.Status == domain.OrderFailed && order.CanRetry() {
		from := order.Status
		if err := order.Transition(domain.OrderPending); err != nil {
			log.Error().Err(err).Str("order_id", order.ID).Msg("retry worker: failed to re-arm order")
			return
		}
		if err := w.store.Update(ctx, order, from); err != nil {
			log.Error().Err(err).Str("order_id", order.ID).Msg("retry worker: failed to persist re-armed order")
			return
		}
	}

	w.metrics.Attempted++
	if err := w.executor.Execute(ctx, order); err != nil {
		w.metrics.Failed++
		log.Error().Err(err).Str("order_id", order.ID).Msg("retry worker: execute failed")
		return
	}

	switch order.Status {
	case domain.OrderFilled:
		w.metrics.Succeeded++
	case domain.OrderFailed:
		w.metrics.Failed++
		if order.AttemptCount >= order.MaxAttempts {
			w.exhaust(ctx, order)
		}
	}
}

// exhaust implements §4.14 step 5: a retry budget exhausted order is
// cancelled and, for entry orders, the originating signal is failed too.
func (w *RetryWorker) exhaust(ctx context.Context, order *domain.Order) {
	from := order.Status
	if from == domain.OrderFailed {
		if err := order.Transition(domain.OrderCancelled); err != nil {
			log.Error().Err(err).Str("order_id", order.ID).Msg("retry worker: failed to cancel exhausted order")
			return
		}
		order.LastError = "Max retries exceeded"
		if err := w.store.Update(ctx, order, from); err != nil {
			log.Error().Err(err).Str("order_id", order.ID).Msg("retry worker: failed to persist cancellation")
			return
		}
	}

	if order.Kind == domain.KindEntry && order.SignalID != "" && w.signals != nil {
		if err := w.signals.UpdateExecutionStatus(ctx, order.SignalID, "Failed", "Max retries exceeded"); err != nil {
			log.Error().Err(err).Str("signal_id", order.SignalID).Msg("retry worker: failed to fail originating signal")
		}
	}
}

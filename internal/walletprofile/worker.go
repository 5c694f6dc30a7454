package walletprofile

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/walltrack/walltrack/internal/config"
	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
)

// WorkerState is the observability-only state machine §4.15 step 5 exposes.
type WorkerState string

const (
	StateIdle       WorkerState = "Idle"
	StateProcessing WorkerState = "Processing"
	StateStopped    WorkerState = "Stopped"
	StateError      WorkerState = "Error"
)

// Status is the snapshot returned by Worker.Status().
type Status struct {
	CurrentState    WorkerState
	LastRunProfiled int
	LastRunActive   int
	LastRunIgnored  int
	LastRunErrors   int
	LastRun         time.Time
}

// Worker is C15: a poll-based batch profiler for newly-discovered wallets.
type Worker struct {
	wallets ports.WalletStore
	history ports.SwapHistoryFetcher
	cfg     config.ProfilingConfig

	mu                sync.Mutex
	state             WorkerState
	lastRun           time.Time
	lastCounts        Status
	consecutiveErrors int

	sleep func(time.Duration) // overridable for tests
	clock func() time.Time
}

// NewWorker builds a Worker over the wallet store and swap-history feed.
func NewWorker(wallets ports.WalletStore, history ports.SwapHistoryFetcher, cfg config.ProfilingConfig) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = 5
	}
	return &Worker{
		wallets: wallets, history: history, cfg: cfg,
		state: StateIdle,
		sleep: time.Sleep,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// Start runs the poll loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	interval := time.Duration(w.cfg.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.setState(StateStopped)
				return
			case <-ticker.C:
				w.runCycle(ctx)
			}
		}
	}()
}

// Status returns a snapshot of the worker's last run, for observability only.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	snap := w.lastCounts
	snap.CurrentState = w.state
	snap.LastRun = w.lastRun
	return snap
}

func (w *Worker) setState(s WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// runCycle implements §4.15's per-cycle loop, including the circuit
// breaker on 5 consecutive cycle errors with exponential backoff.
func (w *Worker) runCycle(ctx context.Context) {
	w.setState(StateProcessing)

	wallets, err := w.wallets.ListByStatus(ctx, domain.WalletDiscovered)
	if err != nil {
		w.recordCycleError(ctx)
		return
	}
	if len(wallets) > w.cfg.BatchSize {
		wallets = wallets[:w.cfg.BatchSize]
	}

	var profiled, active, ignored, errs int
	for i, profile := range wallets {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := w.profileOne(ctx, profile); err != nil {
			log.Error().Err(err).Str("wallet", profile.Address).Msg("profiling worker: error profiling wallet")
			errs++
		} else {
			profiled++
			switch profile.Status {
			case domain.WalletActive:
				active++
			case domain.WalletIgnored:
				ignored++
			}
		}
		if i < len(wallets)-1 && w.cfg.WalletDelaySeconds > 0 {
			w.sleep(time.Duration(w.cfg.WalletDelaySeconds * float64(time.Second)))
		}
	}

	w.mu.Lock()
	w.consecutiveErrors = 0
	w.lastRun = w.clock()
	w.lastCounts = Status{LastRunProfiled: profiled, LastRunActive: active, LastRunIgnored: ignored, LastRunErrors: errs}
	w.state = StateIdle
	w.mu.Unlock()
}

// profileOne implements §4.15 step 2 for a single wallet.
func (w *Worker) profileOne(ctx context.Context, profile *domain.WalletProfile) error {
	events, err := w.history.FetchHistory(ctx, profile.Address, w.cfg.SwapHistoryLimit)
	if err != nil {
		return err
	}

	trades := MatchTrades(profile.Address, events)
	applyLifetimeMetrics(profile, trades)
	applyBehavioralProfile(profile, events)

	profile.Status = domain.WalletProfiled
	if err := w.wallets.Upsert(ctx, profile); err != nil {
		return err
	}

	nextStatus := domain.WalletIgnored
	if len(trades) >= w.cfg.WatchlistMinTrades && profile.WinRate >= w.cfg.WatchlistMinWinRate {
		nextStatus = domain.WalletActive
	}
	profile.Status = nextStatus
	return w.wallets.UpdateStatus(ctx, profile.Address, nextStatus)
}

// applyLifetimeMetrics runs §4.15's performance analysis over the
// matched trade history.
func applyLifetimeMetrics(profile *domain.WalletProfile, trades []domain.Trade) {
	if len(trades) == 0 {
		return
	}
	var wins int
	var totalPnL float64
	for _, tr := range trades {
		if tr.Profitable {
			wins++
		}
		totalPnL += tr.PnLSOL
	}
	profile.TotalTrades = len(trades)
	profile.WinRate = float64(wins) / float64(len(trades))
	profile.TotalPnL = totalPnL
	profile.AvgPnLPerTrade = totalPnL / float64(len(trades))
	profile.LastActivityAt = trades[len(trades)-1].ClosedAt

	windowSize := profile.RollingWindowSize
	if windowSize <= 0 || windowSize > 20 {
		windowSize = 20
	}
	winRate, rWins, rLosses, _ := RollingStats(trades, windowSize)
	profile.RollingWinRate = winRate
	profile.RollingWins = rWins
	profile.RollingLosses = rLosses
	profile.RollingWindowSize = windowSize
}

// applyBehavioralProfile runs §4.15's behavioral profiling: position-size
// style, hold-duration style, and confidence in that classification.
func applyBehavioralProfile(profile *domain.WalletProfile, events []domain.SwapEvent) {
	buys := 0
	var totalSOL, sumHoldHours float64
	var lastBuyAt time.Time
	holds := 0

	for _, ev := range events {
		if ev.Direction != domain.DirectionBuy {
			continue
		}
		buys++
		amt, _ := ev.AmountSOL.Float64()
		totalSOL += amt
		if !lastBuyAt.IsZero() {
			sumHoldHours += ev.BlockTime.Sub(lastBuyAt).Hours()
			holds++
		}
		lastBuyAt = ev.BlockTime
	}

	if buys == 0 {
		profile.BehavioralConfidence = domain.ConfidenceLow
		return
	}

	avgSOL := totalSOL / float64(buys)
	switch {
	case avgSOL < 0.5:
		profile.PositionSizeStyle = "Small"
	case avgSOL < 2.0:
		profile.PositionSizeStyle = "Medium"
	default:
		profile.PositionSizeStyle = "Large"
	}

	if holds > 0 {
		avgHoldHours := sumHoldHours / float64(holds)
		switch {
		case avgHoldHours < 1:
			profile.HoldDurationStyle = "Scalper"
		case avgHoldHours < 24:
			profile.HoldDurationStyle = "Swing"
		default:
			profile.HoldDurationStyle = "Holder"
		}
	}

	switch {
	case buys >= 20:
		profile.BehavioralConfidence = domain.ConfidenceHigh
	case buys >= 5:
		profile.BehavioralConfidence = domain.ConfidenceMedium
	default:
		profile.BehavioralConfidence = domain.ConfidenceLow
	}
}

// recordCycleError implements §4.15 step 4: 5 consecutive cycle errors
// trip the worker's own circuit breaker with exponential backoff,
// capped at 5 minutes.
func (w *Worker) recordCycleError(ctx context.Context) {
	w.mu.Lock()
	w.consecutiveErrors++
	n := w.consecutiveErrors
	w.state = StateError
	w.mu.Unlock()

	if n < w.cfg.MaxConsecutiveErrors {
		return
	}
	shift := n - w.cfg.MaxConsecutiveErrors
	if shift > 9 {
		shift = 9
	}
	backoff := time.Second << uint(shift)
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	select {
	case <-ctx.Done():
	case <-time.After(backoff):
	}
}

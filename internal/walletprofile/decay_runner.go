package walletprofile

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/walltrack/walltrack/internal/config"
	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
)

// DecayRunner periodically re-evaluates decay status for every monitored
// (Active) wallet with sufficient trade history (C16).
type DecayRunner struct {
	wallets ports.WalletStore
	history ports.SwapHistoryFetcher
	events  ports.EventLog
	cfg     config.DecayConfig
	clock   func() time.Time
}

// NewDecayRunner builds a DecayRunner over the wallet store, swap-history
// feed, and event log.
func NewDecayRunner(wallets ports.WalletStore, history ports.SwapHistoryFetcher, events ports.EventLog, cfg config.DecayConfig) *DecayRunner {
	return &DecayRunner{wallets: wallets, history: history, events: events, cfg: cfg, clock: func() time.Time { return time.Now().UTC() }}
}

// Start runs the poll loop at the given interval until ctx is cancelled.
func (r *DecayRunner) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.runCycle(ctx)
			}
		}
	}()
}

func (r *DecayRunner) runCycle(ctx context.Context) {
	wallets, err := r.wallets.ListByStatus(ctx, domain.WalletActive)
	if err != nil {
		log.Error().Err(err).Msg("decay runner: failed to list active wallets")
		return
	}
	for _, profile := range wallets {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := r.EvaluateWallet(ctx, profile); err != nil {
			log.Error().Err(err).Str("wallet", profile.Address).Msg("decay runner: evaluation failed")
		}
	}
}

// EvaluateWallet runs §4.16 end-to-end for a single wallet, persisting
// and logging only when the decay status actually changes.
func (r *DecayRunner) EvaluateWallet(ctx context.Context, profile *domain.WalletProfile) error {
	events, err := r.history.FetchHistory(ctx, profile.Address, 500)
	if err != nil {
		return err
	}
	trades := MatchTrades(profile.Address, events)
	if len(trades) < r.cfg.MinTrades {
		return nil
	}

	windowSize := r.cfg.RollingWindowSize
	winRate, _, _, consecutiveLosses := RollingStats(trades, windowSize)
	daysSinceActivity := r.clock().Sub(profile.LastActivityAt).Hours() / 24

	decision := Evaluate(r.cfg, profile, daysSinceActivity, winRate, consecutiveLosses)
	if !decision.Changed {
		return nil
	}

	oldStatus, oldScore := profile.DecayStatus, profile.Score
	if err := r.wallets.UpdateDecay(ctx, profile.Address, decision.NewStatus, decision.NewScore); err != nil {
		return err
	}
	profile.DecayStatus = decision.NewStatus
	profile.Score = decision.NewScore

	if r.events == nil {
		return nil
	}
	return r.events.AppendDecayEvent(ctx, domain.DecayEvent{
		ID:              domain.NewID(),
		WalletAddress:   profile.Address,
		OldStatus:       oldStatus,
		NewStatus:       decision.NewStatus,
		OldScore:        oldScore,
		NewScore:        decision.NewScore,
		RollingWinRate:  winRate,
		ConsecutiveLoss: consecutiveLosses,
		At:              r.clock(),
	})
}

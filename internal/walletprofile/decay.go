// Package walletprofile implements the wallet profiling worker (C15)
// and the decay detector (C16): turning raw swap history into lifetime
// and rolling wallet statistics, and policing trust decay over time.
package walletprofile

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/config"
	"github.com/walltrack/walltrack/internal/domain"
)

// buyLot is an unmatched slice of a BUY event awaiting a FIFO-matching SELL.
type buyLot struct {
	remainingTokens decimal.Decimal
	pricePerToken   decimal.Decimal
	openedAt        time.Time
}

// MatchTrades implements §4.16 step 1: FIFO per-token BUY/SELL matching
// of a wallet's swap history into completed trades. Events need not be
// pre-sorted; matching proceeds in ascending block-time order.
func MatchTrades(wallet string, events []domain.SwapEvent) []domain.Trade {
	sorted := append([]domain.SwapEvent(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].BlockTime.Before(sorted[j].BlockTime) })

	open := map[string][]*buyLot{}
	var trades []domain.Trade

	for _, ev := range sorted {
		if ev.AmountToken.IsZero() {
			continue
		}
		switch ev.Direction {
		case domain.DirectionBuy:
			open[ev.TokenAddr] = append(open[ev.TokenAddr], &buyLot{
				remainingTokens: ev.AmountToken,
				pricePerToken:   ev.AmountSOL.Div(ev.AmountToken),
				openedAt:        ev.BlockTime,
			})
		case domain.DirectionSell:
			remaining := ev.AmountToken
			sellPrice := ev.AmountSOL.Div(ev.AmountToken)
			lots := open[ev.TokenAddr]
			for len(lots) > 0 && remaining.IsPositive() {
				l := lots[0]
				matched := remaining
				if l.remainingTokens.LessThan(matched) {
					matched = l.remainingTokens
				}
				costSOL := matched.Mul(l.pricePerToken)
				proceedsSOL := matched.Mul(sellPrice)
				pnl := proceedsSOL.Sub(costSOL)
				pnlFloat, _ := pnl.Float64()
				trades = append(trades, domain.Trade{
					WalletAddress: wallet,
					TokenAddress:  ev.TokenAddr,
					PnLSOL:        pnlFloat,
					Profitable:    pnl.IsPositive(),
					OpenedAt:      l.openedAt,
					ClosedAt:      ev.BlockTime,
				})
				l.remainingTokens = l.remainingTokens.Sub(matched)
				remaining = remaining.Sub(matched)
				if !l.remainingTokens.IsPositive() {
					lots = lots[1:]
				}
			}
			open[ev.TokenAddr] = lots
		}
	}

	sort.SliceStable(trades, func(i, j int) bool { return trades[i].ClosedAt.Before(trades[j].ClosedAt) })
	return trades
}

// RollingStats implements §4.16 steps 2-3 over the most recent windowSize
// trades (trades must already be sorted ascending by ClosedAt).
func RollingStats(trades []domain.Trade, windowSize int) (winRate float64, wins, losses, consecutiveLosses int) {
	if len(trades) == 0 {
		return 0, 0, 0, 0
	}
	window := trades
	if windowSize > 0 && len(window) > windowSize {
		window = window[len(window)-windowSize:]
	}
	for _, tr := range window {
		if tr.Profitable {
			wins++
		} else {
			losses++
		}
	}
	if len(window) > 0 {
		winRate = float64(wins) / float64(len(window))
	}

	for i := len(trades) - 1; i >= 0; i-- {
		if trades[i].Profitable {
			break
		}
		consecutiveLosses++
	}
	return winRate, wins, losses, consecutiveLosses
}

// DecayDecision is the outcome of evaluating a wallet against §4.16 step 5.
type DecayDecision struct {
	NewStatus domain.DecayStatus
	Changed   bool
	NewScore  float64
}

// Evaluate implements §4.16 steps 5-6: the strict priority status
// assignment and the accompanying score adjustment, clamped to [0.1,1.0].
func Evaluate(cfg config.DecayConfig, profile *domain.WalletProfile, daysSinceActivity float64, rollingWinRate float64, consecutiveLosses int) DecayDecision {
	current := profile.DecayStatus
	var next domain.DecayStatus
	switch {
	case daysSinceActivity >= float64(cfg.DormancyDays):
		next = domain.DecayDormant
	case consecutiveLosses >= cfg.ConsecutiveLossThreshold:
		next = domain.DecayDowngraded
	case rollingWinRate < cfg.DecayThreshold:
		next = domain.DecayFlagged
	case current == domain.DecayFlagged && rollingWinRate >= cfg.RecoveryThreshold:
		next = domain.DecayOk
	default:
		next = current
	}

	if next == current {
		return DecayDecision{NewStatus: current, Changed: false, NewScore: profile.Score}
	}

	// §4.16 step 6: decay applies a flat multiplier only on a genuine
	// ok->flagged detection, a downgrade compounds once per consecutive
	// loss beyond the threshold (zero times exactly at the threshold),
	// recovery applies a flat boost. Dormancy leaves score untouched.
	// Config values are the literal multipliers, not deltas.
	score := profile.Score
	switch {
	case current == domain.DecayOk && next == domain.DecayFlagged:
		score *= cfg.ScoreDowngradeDecay
	case next == domain.DecayDowngraded:
		excess := consecutiveLosses - cfg.ConsecutiveLossThreshold
		if excess < 0 {
			excess = 0
		}
		score *= math.Pow(cfg.ScoreDowngradeLoss, float64(excess))
	case current == domain.DecayFlagged && next == domain.DecayOk:
		score *= cfg.ScoreRecoveryBoost
	}
	score = domain.ClampScore(score)

	return DecayDecision{NewStatus: next, Changed: true, NewScore: score}
}

package orders

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
)

const hundred = 100

// PositionBinder is the C12-facing half of C11's entry pipeline: once
// an entry order fills, it binds the signal's conviction to an exit
// strategy and derives the position's price levels from that
// strategy's rule set.
type PositionBinder struct {
	positions  ports.PositionStore
	strategies StrategyResolver
	strategyName string
}

// StrategyResolver is the subset of ports.ExitStrategyStore the binder needs.
type StrategyResolver interface {
	GetActive(ctx context.Context, name string) (*domain.ExitStrategy, error)
}

// NewPositionBinder builds a PositionBinder over the active strategy
// named strategyName — the bot runs a single named strategy at a time
// (§6's exit-strategy activation model), selectable per deployment.
func NewPositionBinder(positions ports.PositionStore, strategies StrategyResolver, strategyName string) *PositionBinder {
	return &PositionBinder{positions: positions, strategies: strategies, strategyName: strategyName}
}

// OpenPosition implements orders.PositionOpener: it resolves the active
// exit strategy, derives PositionLevels from its rule set, and persists
// a new Open position for the filled entry order.
func (b *PositionBinder) OpenPosition(ctx context.Context, signal *domain.ScoredSignal, order *domain.Order) error {
	strategy, err := b.strategies.GetActive(ctx, b.strategyName)
	if err != nil {
		return fmt.Errorf("resolve active exit strategy %q: %w", b.strategyName, err)
	}
	if strategy == nil {
		return fmt.Errorf("no active exit strategy named %q", b.strategyName)
	}

	position := &domain.Position{
		ID:                  domain.NewID(),
		SignalID:            signal.SignalID,
		TokenAddress:        order.TokenAddress,
		WalletAddress:       signal.Event.WalletAddr,
		Status:              domain.PositionOpen,
		EntryPrice:          order.ActualPrice,
		EntryAmountSOL:      order.AmountSOL,
		EntryAmountTokens:   order.AmountTokens,
		CurrentAmountTokens: order.AmountTokens,
		ConvictionTier:      signal.Conviction,
		ExitStrategyID:      strategy.ID,
		Levels:              deriveLevels(order.ActualPrice, strategy),
		IsSimulated:         order.IsSimulated,
		CreatedAt:           order.FilledAt,
	}

	return b.positions.Create(ctx, position)
}

// deriveLevels converts a strategy's rule set into concrete price
// thresholds anchored to the fill price, ascending by take-profit
// trigger price per PositionLevels' documented ordering.
func deriveLevels(entryPrice decimal.Decimal, strategy *domain.ExitStrategy) domain.PositionLevels {
	levels := domain.PositionLevels{EntryPrice: entryPrice}

	pct := decimal.NewFromInt(hundred)
	for _, rule := range strategy.Rules {
		if !rule.Enabled {
			continue
		}
		switch rule.RuleType {
		case domain.RuleStopLoss:
			levels.StopLossPrice = entryPrice.Mul(pct.Add(rule.TriggerPct)).Div(pct)
		case domain.RuleTakeProfit:
			levels.TakeProfitLevels = append(levels.TakeProfitLevels, domain.CalculatedLevel{
				LevelType:      fmt.Sprintf("TP%d", len(levels.TakeProfitLevels)+1),
				TriggerPrice:   entryPrice.Mul(pct.Add(rule.TriggerPct)).Div(pct),
				SellPercentage: rule.ExitPct,
			})
		}
	}

	sort.SliceStable(levels.TakeProfitLevels, func(i, j int) bool {
		return levels.TakeProfitLevels[i].TriggerPrice.LessThan(levels.TakeProfitLevels[j].TriggerPrice)
	})
	for i := range levels.TakeProfitLevels {
		levels.TakeProfitLevels[i].LevelType = fmt.Sprintf("TP%d", i+1)
	}

	if !strategy.MoonbagPct.IsZero() && levels.StopLossPrice.IsPositive() {
		moonbag := levels.StopLossPrice
		levels.MoonbagStopPrice = &moonbag
	}

	return levels
}

// Package exits implements the Exit Manager (C12): per-position tick
// processing against a live price, ordered stop-loss/trailing-stop/
// take-profit/time-rule evaluation, and the resulting sell-order and
// position-state bookkeeping.
package exits

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/orders"
	"github.com/walltrack/walltrack/internal/ports"
)

// ExitSlippageBps is the higher slippage tolerance exits get over entries.
const ExitSlippageBps = 300

// StrategyLookup resolves an ExitStrategy by id.
type StrategyLookup interface {
	Get(ctx context.Context, id string) (*domain.ExitStrategy, error)
}

// Manager is C12.
type Manager struct {
	positions ports.PositionStore
	strategies StrategyLookup
	executor  *orders.Executor
	orderRepo ports.OrderStore
	clock     func() time.Time
}

// New builds a Manager over the position/strategy/order collaborators.
func New(positions ports.PositionStore, strategies StrategyLookup, executor *orders.Executor, orderRepo ports.OrderStore) *Manager {
	return &Manager{positions: positions, strategies: strategies, executor: executor, orderRepo: orderRepo, clock: func() time.Time { return time.Now().UTC() }}
}

// exitDecision is the internal result of check_exit_conditions.
type exitDecision struct {
	fire        bool
	reason      domain.ExitReason
	triggerLevel string
	sellPct     decimal.Decimal // of entry_amount_tokens, (0,100]
	isFullExit  bool
}

// ProcessPosition implements §4.12's process_position(position, current_price).
// Exits bypass the pause gate (C6 guarantees) — no risk check here.
func (m *Manager) ProcessPosition(ctx context.Context, position *domain.Position, currentPrice decimal.Decimal) error {
	if position.IsClosed() {
		return nil
	}

	strategy, err := m.strategies.Get(ctx, position.ExitStrategyID)
	if err != nil {
		log.Error().Err(err).Str("position_id", position.ID).Msg("exit manager: failed to load strategy, skipping tick")
		return nil
	}
	if strategy == nil {
		log.Warn().Str("position_id", position.ID).Msg("exit manager: missing exit strategy, skipping tick")
		return nil
	}

	m.updatePeak(position, currentPrice)
	if trailing := strategy.RuleOfType(domain.RuleTrailingStop); trailing != nil {
		m.recomputeTrailingStop(position, trailing)
	}

	decision := m.checkExitConditions(position, strategy, currentPrice)
	if !decision.fire {
		return nil
	}

	return m.executeExit(ctx, position, strategy, decision, currentPrice)
}

func (m *Manager) updatePeak(position *domain.Position, currentPrice decimal.Decimal) {
	if position.PeakPrice == nil || currentPrice.GreaterThan(*position.PeakPrice) {
		peak := currentPrice
		position.PeakPrice = &peak
	}
	now := m.clock()
	position.LastPriceCheck = &now
}

// recomputeTrailingStop derives trailing_stop_current_price from the
// updated peak once the position has moved up by the rule's activation_pct.
func (m *Manager) recomputeTrailingStop(position *domain.Position, rule *domain.ExitRule) {
	if position.IsMoonbag {
		// Moonbag semantics: once is_moonbag=true, trailing stop is disarmed.
		position.Levels.TrailingStopCurrentPrice = nil
		return
	}
	if position.PeakPrice == nil {
		return
	}
	activation := rule.Params["activation_pct"]
	gain := position.PeakPrice.Sub(position.Levels.EntryPrice).Div(position.Levels.EntryPrice).Mul(decimal.NewFromInt(100))
	if !activation.IsZero() && gain.LessThan(activation) {
		return
	}
	trailPct := rule.TriggerPct.Abs()
	stop := position.PeakPrice.Mul(decimal.NewFromInt(100).Sub(trailPct)).Div(decimal.NewFromInt(100))
	position.Levels.TrailingStopCurrentPrice = &stop
}

// checkExitConditions implements §4.12 step 4 in priority order:
// stop-loss, trailing-stop, take-profit, time rules.
func (m *Manager) checkExitConditions(position *domain.Position, strategy *domain.ExitStrategy, currentPrice decimal.Decimal) exitDecision {
	if d, ok := m.checkStopLoss(position, currentPrice); ok {
		return d
	}
	if d, ok := m.checkTrailingStop(position, strategy, currentPrice); ok {
		return d
	}
	if d, ok := m.checkTakeProfit(position, strategy, currentPrice); ok {
		return d
	}
	if d, ok := m.checkTimeRules(position, strategy); ok {
		return d
	}
	return exitDecision{}
}

func (m *Manager) checkStopLoss(position *domain.Position, currentPrice decimal.Decimal) (exitDecision, bool) {
	stopPrice := position.Levels.StopLossPrice
	if position.IsMoonbag {
		if position.Levels.MoonbagStopPrice == nil {
			return exitDecision{}, false // moonbag rides with no stop configured
		}
		stopPrice = *position.Levels.MoonbagStopPrice
	}
	if currentPrice.GreaterThan(stopPrice) {
		return exitDecision{}, false
	}
	return exitDecision{fire: true, reason: domain.ExitStopLoss, triggerLevel: "stop_loss", sellPct: decimal.NewFromInt(100), isFullExit: true}, true
}

func (m *Manager) checkTrailingStop(position *domain.Position, strategy *domain.ExitStrategy, currentPrice decimal.Decimal) (exitDecision, bool) {
	if !strategy.HasRuleType(domain.RuleTrailingStop) || position.IsMoonbag {
		return exitDecision{}, false
	}
	trail := position.Levels.TrailingStopCurrentPrice
	if trail == nil || currentPrice.GreaterThan(*trail) {
		return exitDecision{}, false
	}
	moonbagEnabled := strategy.MoonbagEnabled()
	sellPct := decimal.NewFromInt(100)
	if moonbagEnabled {
		sellPct = decimal.NewFromInt(100).Sub(strategy.MoonbagPct)
	}
	return exitDecision{fire: true, reason: domain.ExitTrailingStop, triggerLevel: "trailing_stop", sellPct: sellPct, isFullExit: !moonbagEnabled}, true
}

func (m *Manager) checkTakeProfit(position *domain.Position, strategy *domain.ExitStrategy, currentPrice decimal.Decimal) (exitDecision, bool) {
	next := position.Levels.NextTakeProfit()
	if next == nil || currentPrice.LessThan(next.TriggerPrice) {
		return exitDecision{}, false
	}
	sellPct := next.SellPercentage
	if strategy.MoonbagEnabled() {
		sellPct = sellPct.Mul(decimal.NewFromInt(100).Sub(strategy.MoonbagPct)).Div(decimal.NewFromInt(100))
	}
	return exitDecision{fire: true, reason: domain.ExitTakeProfit, triggerLevel: next.LevelType, sellPct: sellPct}, true
}

func (m *Manager) checkTimeRules(position *domain.Position, strategy *domain.ExitStrategy) (exitDecision, bool) {
	if !strategy.HasRuleType(domain.RuleTimeBased) {
		return exitDecision{}, false
	}
	if strategy.MaxHoldHours > 0 && time.Since(position.CreatedAt).Hours() >= strategy.MaxHoldHours {
		return exitDecision{fire: true, reason: domain.ExitTimeLimit, triggerLevel: "max_hold", sellPct: decimal.NewFromInt(100), isFullExit: true}, true
	}
	if fired := m.checkStagnation(position, strategy); fired {
		return exitDecision{fire: true, reason: domain.ExitStagnation, triggerLevel: "stagnation", sellPct: decimal.NewFromInt(100), isFullExit: true}, true
	}
	return exitDecision{}, false
}

// checkStagnation implements §4.12.a: the per-position stagnation window
// tracks window_start_price, set at entry or on window roll, and fires
// once the window is complete and price has drifted within the threshold.
func (m *Manager) checkStagnation(position *domain.Position, strategy *domain.ExitStrategy) bool {
	if strategy.StagnationHours <= 0 {
		return false
	}
	if position.StagnationWindowSetAt.IsZero() {
		position.StagnationWindowStart = position.Levels.EntryPrice
		position.StagnationWindowSetAt = position.CreatedAt
	}
	elapsed := time.Since(position.StagnationWindowSetAt).Hours()
	if elapsed < strategy.StagnationHours {
		return false
	}
	current := position.PeakPrice
	if current == nil {
		return false
	}
	drift := current.Sub(position.StagnationWindowStart).Div(position.StagnationWindowStart).Mul(decimal.NewFromInt(100)).Abs()
	if drift.GreaterThan(decimal.NewFromFloat(strategy.StagnationThresholdPct)) {
		// window rolls: price moved enough, reset the window instead of firing.
		position.StagnationWindowStart = *current
		position.StagnationWindowSetAt = m.clock()
		return false
	}
	return true
}

// executeExit implements §4.12 step 5: build and submit a sell order,
// record the ExitExecution, and apply the §4.12.b state transition.
func (m *Manager) executeExit(ctx context.Context, position *domain.Position, strategy *domain.ExitStrategy, decision exitDecision, currentPrice decimal.Decimal) error {
	// A full exit always clears whatever remains; a partial (take-profit
	// rung, or trailing stop leaving a moonbag) sells a slice expressed
	// as a percentage of the original entry size, per the S3 ladder math.
	var tokensToSell decimal.Decimal
	if decision.isFullExit {
		tokensToSell = position.CurrentAmountTokens
	} else {
		tokensToSell = position.EntryAmountTokens.Mul(decision.sellPct).Div(decimal.NewFromInt(100))
	}
	if tokensToSell.GreaterThan(position.CurrentAmountTokens) {
		tokensToSell = position.CurrentAmountTokens
	}
	amountSOL := tokensToSell.Mul(currentPrice)

	order := domain.NewOrder(domain.KindExit, domain.OrderSell, position.TokenAddress, amountSOL, currentPrice, ExitSlippageBps)
	order.PositionID = position.ID
	order.AmountTokens = tokensToSell
	order.IsSimulated = position.IsSimulated
	if err := m.orderRepo.Create(ctx, order); err != nil {
		return err
	}

	if err := m.executor.Execute(ctx, order); err != nil {
		log.Error().Err(err).Str("position_id", position.ID).Msg("exit manager: execute error, will retry next tick")
		return nil
	}
	if order.Status != domain.OrderFilled {
		// Failure to execute an exit is logged but does not advance position
		// state; the next tick retries (C14 also owns the retry schedule).
		log.Warn().Str("position_id", position.ID).Str("order_id", order.ID).Msg("exit order did not fill this tick")
		return nil
	}

	exitValue := order.AmountTokens.Mul(order.ActualPrice)
	entryCostProrated := position.EntryAmountSOL.Mul(order.AmountTokens).Div(position.EntryAmountTokens)
	pnl := exitValue.Sub(entryCostProrated)

	execution := domain.ExitExecution{
		PositionID:   position.ID,
		Reason:       decision.reason,
		TriggerLevel: decision.triggerLevel,
		TokensSold:   order.AmountTokens,
		SOLReceived:  exitValue,
		PnLSOL:       pnl,
		TxSignature:  order.TxSignature,
		ExecutedAt:   m.clock(),
	}
	if err := m.positions.SaveExitExecution(ctx, execution); err != nil {
		return err
	}
	if err := m.positions.AppendTxSignature(ctx, position.ID, order.TxSignature); err != nil {
		return err
	}

	m.applyPostExitState(position, strategy, decision, order, pnl)
	return m.positions.Update(ctx, position)
}

// applyPostExitState implements §4.12.b's position-state transition.
func (m *Manager) applyPostExitState(position *domain.Position, strategy *domain.ExitStrategy, decision exitDecision, order *domain.Order, pnl decimal.Decimal) {
	position.ExitTxSignatures = append(position.ExitTxSignatures, order.TxSignature)
	position.CurrentAmountTokens = position.CurrentAmountTokens.Sub(order.AmountTokens)
	if position.CurrentAmountTokens.IsNegative() {
		position.CurrentAmountTokens = decimal.Zero // B3: no dust residue
	}
	position.RealizedPnLSOL = position.RealizedPnLSOL.Add(pnl)

	if decision.triggerLevel != "" {
		for i := range position.Levels.TakeProfitLevels {
			if position.Levels.TakeProfitLevels[i].LevelType == decision.triggerLevel {
				position.Levels.TakeProfitLevels[i].IsTriggered = true
				triggeredAt := m.clock()
				position.Levels.TakeProfitLevels[i].TriggeredAt = triggeredAt
			}
		}
	}

	switch {
	case decision.isFullExit || position.CurrentAmountTokens.IsZero():
		position.Status = domain.PositionClosed
		position.ExitReason = decision.reason
		exitTime := m.clock()
		position.ExitTime = &exitTime
		exitPrice := order.ActualPrice
		position.ExitPrice = &exitPrice
	case position.Levels.AllTakeProfitsTriggered() && strategy.MoonbagEnabled():
		position.Status = domain.PositionMoonbag
		position.IsMoonbag = true
	default:
		position.Status = domain.PositionPartialExit
	}
}

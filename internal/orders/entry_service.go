package orders

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
	"github.com/walltrack/walltrack/internal/sizing"
)

// RiskGate is the subset of C6 the entry service consults.
type RiskGate interface {
	CanTrade() bool
}

// PriceLookup is the subset of C1 the entry service consults.
type PriceLookup interface {
	PriceOf(ctx context.Context, token string) ports.PriceResult
}

// PositionOpener creates a Position once an entry order fills
// (implemented by PositionBinder in this package).
type PositionOpener interface {
	OpenPosition(ctx context.Context, signal *domain.ScoredSignal, order *domain.Order) error
}

// Portfolio reports the account-level figures the sizer needs, kept
// separate from the signal's own swap amount.
type Portfolio interface {
	AvailableBalanceSOL(ctx context.Context) decimal.Decimal
	AllocatedSOL(ctx context.Context) decimal.Decimal
	OpenPositionCount(ctx context.Context) int
}

// EntryService is C11.
type EntryService struct {
	risk      RiskGate
	prices    PriceLookup
	sizer     *sizing.Sizer
	orders    ports.OrderStore
	signals   ports.SignalLog
	executor  *Executor
	positions PositionOpener
	portfolio Portfolio

	maxConcurrentPositions int
}

// NewEntryService wires C11's collaborators.
func NewEntryService(risk RiskGate, prices PriceLookup, sizer *sizing.Sizer, orders ports.OrderStore, signals ports.SignalLog, executor *Executor, positions PositionOpener, portfolio Portfolio, maxConcurrentPositions int) *EntryService {
	return &EntryService{
		risk: risk, prices: prices, sizer: sizer, orders: orders, signals: signals,
		executor: executor, positions: positions, portfolio: portfolio, maxConcurrentPositions: maxConcurrentPositions,
	}
}

// ProcessSignal implements §4.11's process_signal(ScoredSignal) -> Order?.
func (s *EntryService) ProcessSignal(ctx context.Context, signal *domain.ScoredSignal) (*domain.Order, error) {
	if !s.risk.CanTrade() {
		s.markSignal(ctx, signal, "Blocked", "system_paused")
		return nil, nil
	}

	priceResult := s.prices.PriceOf(ctx, signal.Event.TokenAddr)
	if !priceResult.OK {
		s.markSignal(ctx, signal, "Error", "price_fetch")
		return nil, nil
	}

	sizeReq := sizing.Request{
		SignalScore:          signal.FinalScore,
		Conviction:           signal.Conviction,
		AvailableBalanceSOL:  s.portfolio.AvailableBalanceSOL(ctx),
		CurrentAllocatedSOL:  s.portfolio.AllocatedSOL(ctx),
		CurrentPositionCount: s.portfolio.OpenPositionCount(ctx),
		TokenAddress:         signal.Event.TokenAddr,
	}
	sizeResult := s.sizer.Size(sizeReq, s.maxConcurrentPositions)
	switch sizeResult.Outcome {
	case sizing.Skipped:
		s.markSignal(ctx, signal, "Failed", "sizing_skipped:"+string(sizeResult.SkipReason))
		return nil, nil
	case sizing.Blocked:
		s.markSignal(ctx, signal, "Failed", "sizing_blocked:"+string(sizeResult.BlockReason))
		return nil, nil
	}

	order := domain.NewOrder(domain.KindEntry, domain.OrderBuy, signal.Event.TokenAddr, sizeResult.AmountSOL, priceResult.Price, maxSlippageFor(signal.Conviction))
	order.SignalID = signal.SignalID
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	if err := s.executor.Execute(ctx, order); err != nil {
		log.Error().Err(err).Str("order_id", order.ID).Msg("entry order execution failed unexpectedly")
		return order, err
	}

	switch order.Status {
	case domain.OrderFilled:
		if err := s.positions.OpenPosition(ctx, signal, order); err != nil {
			log.Error().Err(err).Str("order_id", order.ID).Msg("failed to open position after fill")
			return order, err
		}
		s.markSignal(ctx, signal, "Executed", "")
	case domain.OrderFailed:
		if !order.CanRetry() {
			s.markSignal(ctx, signal, "Failed", order.LastError)
		}
		// else: signal state unchanged, C14 will pick up the retry.
	}

	return order, nil
}

func (s *EntryService) markSignal(ctx context.Context, signal *domain.ScoredSignal, status, reason string) {
	signal.ExecutionStatus = status
	signal.ExecutionReason = reason
	if s.signals == nil {
		return
	}
	if err := s.signals.UpdateExecutionStatus(ctx, signal.SignalID, status, reason); err != nil {
		log.Error().Err(err).Str("signal_id", signal.SignalID).Msg("failed to update signal execution status")
	}
}

// maxSlippageFor derives max_slippage_bps from conviction tier; high
// conviction signals tolerate a little more slippage to avoid missing
// fast-moving entries.
func maxSlippageFor(conviction domain.Conviction) int {
	if conviction == domain.ConvictionHigh {
		return 150
	}
	return 100
}

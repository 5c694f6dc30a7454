// Package orders implements the entry order service (C11), the order
// executor (C13), and the retry worker (C14): the pipeline that turns a
// gated signal into a submitted swap and carries it through to a
// terminal state.
package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
)

// Executor is C13: it drives a single order from Pending through to a
// terminal Filled or Failed, never retrying synchronously — C14 owns
// the retry loop.
type Executor struct {
	store  ports.OrderStore
	client ports.TradeClient
	clock  func() time.Time
}

// NewExecutor builds an Executor over the order store and trade client.
func NewExecutor(store ports.OrderStore, client ports.TradeClient) *Executor {
	return &Executor{store: store, client: client, clock: func() time.Time { return time.Now().UTC() }}
}

// Execute implements §4.13's state machine walk for one order.
func (e *Executor) Execute(ctx context.Context, order *domain.Order) error {
	if order.Status != domain.OrderPending {
		return &domain.InvalidTransitionError{Entity: "Order", From: string(order.Status), To: string(domain.OrderSubmitted)}
	}

	if err := e.transition(ctx, order, domain.OrderSubmitted, ""); err != nil {
		return err
	}

	if order.IsSimulated {
		e.fillSimulated(ctx, order)
		return nil
	}

	req := ports.SwapRequest{
		TokenAddress:   order.TokenAddress,
		Side:           order.Side,
		AmountSOL:      order.AmountSOL,
		MaxSlippageBps: order.MaxSlippageBps,
	}
	res, err := e.client.Swap(ctx, req)
	if err != nil {
		e.fail(ctx, order, err.Error())
		return nil
	}

	order.TxSignature = res.TxSignature
	if err := e.transition(ctx, order, domain.OrderConfirming, "tx submitted: "+res.TxSignature); err != nil {
		return err
	}

	if res.Status != domain.OrderFilled {
		e.fail(ctx, order, res.Error)
		return nil
	}

	// A swap's output unit depends on direction: a Buy receives tokens,
	// a Sell receives SOL. AmountTokens for a Sell is the input (tokens
	// being sold) and must not be clobbered by the output amount.
	switch order.Side {
	case domain.OrderBuy:
		order.AmountTokens = res.OutputAmount
		if !order.AmountTokens.IsZero() {
			order.ActualPrice = order.AmountSOL.Div(order.AmountTokens)
		}
	case domain.OrderSell:
		order.AmountSOL = res.OutputAmount
		if !order.AmountTokens.IsZero() {
			order.ActualPrice = res.OutputAmount.Div(order.AmountTokens)
		}
	}
	order.FilledAt = e.clock()
	if err := e.transition(ctx, order, domain.OrderFilled, "filled"); err != nil {
		return err
	}
	return nil
}

// fillSimulated deterministically synthesizes a fill for dev/test mode,
// bypassing the trade client entirely.
func (e *Executor) fillSimulated(ctx context.Context, order *domain.Order) {
	order.ActualPrice = order.ExpectedPrice
	order.TxSignature = simulatedSignature(order.ID)
	if order.AmountTokens.IsZero() && !order.ExpectedPrice.IsZero() {
		order.AmountTokens = order.AmountSOL.Div(order.ExpectedPrice)
	}
	order.FilledAt = e.clock()

	if err := e.transition(ctx, order, domain.OrderConfirming, "simulated tx: "+order.TxSignature); err != nil {
		log.Error().Err(err).Str("order_id", order.ID).Msg("simulated order failed Confirming transition")
		return
	}
	if err := e.transition(ctx, order, domain.OrderFilled, "simulated fill"); err != nil {
		log.Error().Err(err).Str("order_id", order.ID).Msg("simulated order failed Filled transition")
	}
}

func simulatedSignature(orderID string) string {
	return base58.Encode([]byte("sim-" + orderID))
}

// fail transitions to Failed, bumps attempt_count, and schedules the
// next retry according to RETRY_DELAYS, when attempts remain.
func (e *Executor) fail(ctx context.Context, order *domain.Order, reason string) {
	from := order.Status
	order.AttemptCount++
	order.LastError = reason
	order.Status = domain.OrderFailed
	order.UpdatedAt = e.clock()
	if order.CanRetry() {
		order.NextRetryAt = e.clock().Add(domain.NextRetryDelay(order.AttemptCount, domain.DefaultRetryDelays))
	}

	if err := e.store.Update(ctx, order, from); err != nil {
		log.Error().Err(err).Str("order_id", order.ID).Msg("failed to persist order failure")
		return
	}
	e.appendLog(ctx, order.ID, from, domain.OrderFailed, reason)
}

func (e *Executor) transition(ctx context.Context, order *domain.Order, to domain.OrderStatus, detail string) error {
	from := order.Status
	if err := order.Transition(to); err != nil {
		return err
	}
	if err := e.store.Update(ctx, order, from); err != nil {
		return fmt.Errorf("persist transition %s -> %s: %w", from, to, err)
	}
	e.appendLog(ctx, order.ID, from, to, detail)
	return nil
}

func (e *Executor) appendLog(ctx context.Context, orderID string, from, to domain.OrderStatus, detail string) {
	if err := e.store.AppendStatusLog(ctx, domain.OrderStatusLogEntry{
		OrderID: orderID, ChangedAt: e.clock(), OldStatus: from, NewStatus: to, Detail: detail,
	}); err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("failed to append order status log")
	}
}

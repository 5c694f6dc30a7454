package orders

import (
	"context"

	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
)

// SimulatedPriceLookup is the subset of C1 the simulated trade client
// needs to mark a fill against a live quote.
type SimulatedPriceLookup interface {
	PriceOf(ctx context.Context, token string) ports.PriceResult
}

// SimulatedTradeClient is the ports.TradeClient the teacher pack's own
// simulation mode used a dedicated cmd/ entrypoint for: here it's a
// swappable adapter instead, so the same EntryService/Executor/Manager
// code path runs in paper-trading mode when no real venue is wired.
// Every fill is instant, at the oracle's current quote, with no slippage
// modeling; the request's MaxSlippageBps is not checked. It's a separate mechanism
// from Executor's own order.IsSimulated fast path: that one bypasses
// ports.TradeClient entirely for orders explicitly flagged simulated;
// this one IS a ports.TradeClient, wired as the deployment default when
// no real venue exists, its fills distinguishable downstream by the
// "SIM-" tx signature prefix.
type SimulatedTradeClient struct {
	prices SimulatedPriceLookup
}

// NewSimulatedTradeClient builds a SimulatedTradeClient over a price source.
func NewSimulatedTradeClient(prices SimulatedPriceLookup) *SimulatedTradeClient {
	return &SimulatedTradeClient{prices: prices}
}

// Swap implements ports.TradeClient: it re-quotes the token and fills
// immediately at that quote, failing only when no quote is available.
func (c *SimulatedTradeClient) Swap(ctx context.Context, req ports.SwapRequest) (ports.SwapResult, error) {
	quote := c.prices.PriceOf(ctx, req.TokenAddress)
	if !quote.OK {
		return ports.SwapResult{Status: domain.OrderFailed, Error: "simulated venue: no quote available"}, nil
	}

	// A Buy's AmountSOL is SOL being spent (input): convert to tokens at
	// the live quote. A Sell's AmountSOL already IS the expected SOL
	// notional computed by the caller against its own current-price read
	// (ports.SwapRequest has no token-quantity field to re-derive it
	// from), so it passes through unchanged rather than being re-priced
	// a second time.
	outputAmount := req.AmountSOL.Div(quote.Price)
	if req.Side == domain.OrderSell {
		outputAmount = req.AmountSOL
	}

	return ports.SwapResult{
		TxSignature:  "SIM-" + domain.NewID(),
		OutputAmount: outputAmount,
		Status:       domain.OrderFilled,
	}, nil
}

var _ ports.TradeClient = (*SimulatedTradeClient)(nil)

// Package signalpipe implements the signal filter (C3), scorer (C4),
// and threshold gate (C5): the pure decision chain between a raw swap
// event and an eligible, conviction-tiered signal.
package signalpipe

import (
	"context"

	"github.com/walltrack/walltrack/internal/domain"
)

// MonitoredWallets answers whether a wallet is currently being tracked,
// kept hot by C15's profiling worker.
type MonitoredWallets interface {
	IsMonitored(address string) bool
	IsBlacklisted(address string) bool
}

// DuplicateChecker answers whether a tx_signature was already logged,
// backing I6/R1 (idempotent re-processing of the same signature).
type DuplicateChecker interface {
	SeenTxSignature(ctx context.Context, txSignature string) bool
}

// Filter is C3: an ordered, fail-fast set of checks over a raw swap event.
type Filter struct {
	wallets       MonitoredWallets
	dupes         DuplicateChecker
	dustThreshold float64
}

// NewFilter builds a Filter with the configured dust threshold in SOL.
func NewFilter(wallets MonitoredWallets, dupes DuplicateChecker, dustThreshold float64) *Filter {
	return &Filter{wallets: wallets, dupes: dupes, dustThreshold: dustThreshold}
}

// Run applies the checks in the order spec'd by §4.3, stopping at the
// first non-Passed result.
func (f *Filter) Run(ctx context.Context, ev domain.SwapEvent) domain.FilterResult {
	if !f.wallets.IsMonitored(ev.WalletAddr) {
		return domain.FilterResult{Status: domain.FilterNotMonitored, Reason: "wallet not in monitored set"}
	}
	if f.wallets.IsBlacklisted(ev.WalletAddr) {
		return domain.FilterResult{Status: domain.FilterBlacklisted, Reason: "wallet blacklisted"}
	}
	if ev.AmountSOL.InexactFloat64() < f.dustThreshold {
		return domain.FilterResult{Status: domain.FilterDust, Reason: "amount below dust threshold"}
	}
	if f.dupes.SeenTxSignature(ctx, ev.TxSignature) {
		return domain.FilterResult{Status: domain.FilterDuplicateTx, Reason: "tx_signature already processed"}
	}
	// domain.FilterSelfTrade is reserved in the status enum but unused here:
	// a SwapEvent carries no counterparty/pool address to compare against,
	// so wash-trade detection has nothing to check. See SPEC_FULL.md's
	// narrowing note under C3's Non-goals.
	return domain.FilterResult{Status: domain.FilterPassed}
}

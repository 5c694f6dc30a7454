package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/domain"
)

// HistoryFetcher is the REST-based ports.SwapHistoryFetcher: a capped,
// newest-first swap history lookup per wallet, consumed by C15/C16's
// FIFO trade matching.
type HistoryFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHistoryFetcher builds a HistoryFetcher against baseURL, mirroring
// the teacher's fixed-timeout http.Client (minus the HTTP/2 pool, which
// exists there to spread Jupiter swap-quote load, not a once-per-wallet
// history GET).
func NewHistoryFetcher(baseURL string) *HistoryFetcher {
	return &HistoryFetcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type historyWireEntry struct {
	TxSignature string `json:"tx_signature"`
	TokenAddr   string `json:"token_address"`
	Direction   string `json:"direction"`
	AmountToken string `json:"amount_token"`
	AmountSOL   string `json:"amount_sol"`
	Slot        uint64 `json:"slot"`
	BlockTime   int64  `json:"block_time"`
}

// FetchHistory implements ports.SwapHistoryFetcher.
func (f *HistoryFetcher) FetchHistory(ctx context.Context, wallet string, limit int) ([]domain.SwapEvent, error) {
	url := fmt.Sprintf("%s/wallets/%s/swaps?limit=%d", f.baseURL, wallet, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ingress: history fetch for %s returned status %d", wallet, resp.StatusCode)
	}

	var wire []historyWireEntry
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, err
	}

	events := make([]domain.SwapEvent, 0, len(wire))
	for _, e := range wire {
		amountToken, err := decimal.NewFromString(e.AmountToken)
		if err != nil {
			continue
		}
		amountSOL, err := decimal.NewFromString(e.AmountSOL)
		if err != nil {
			continue
		}
		direction := domain.DirectionBuy
		if e.Direction == string(domain.DirectionSell) {
			direction = domain.DirectionSell
		}
		events = append(events, domain.SwapEvent{
			TxSignature: e.TxSignature,
			WalletAddr:  wallet,
			TokenAddr:   e.TokenAddr,
			Direction:   direction,
			AmountToken: amountToken,
			AmountSOL:   amountSOL,
			Slot:        e.Slot,
			BlockTime:   time.Unix(e.BlockTime, 0).UTC(),
		})
	}
	return events, nil
}

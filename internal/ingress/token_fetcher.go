package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/walltrack/walltrack/internal/domain"
)

// HTTPTokenFetcher is the ports.TokenFetcher adapter over a REST token
// characteristics feed, grounded on HistoryFetcher's http.Client shape.
type HTTPTokenFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTokenFetcher builds an HTTPTokenFetcher against baseURL.
func NewHTTPTokenFetcher(baseURL string) *HTTPTokenFetcher {
	return &HTTPTokenFetcher{baseURL: baseURL, client: &http.Client{Timeout: 3 * time.Second}}
}

type tokenWireEntry struct {
	LiquidityUSD float64 `json:"liquidity_usd"`
	MarketCapUSD float64 `json:"market_cap_usd"`
	AgeMinutes   float64 `json:"age_minutes"`
	IsHoneypot   bool    `json:"is_honeypot"`
	IsNewToken   bool    `json:"is_new_token"`
}

// Fetch implements ports.TokenFetcher.
func (f *HTTPTokenFetcher) Fetch(ctx context.Context, token string) (*domain.TokenCharacteristics, error) {
	url := fmt.Sprintf("%s/tokens/%s", f.baseURL, token)
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
		return nil, fmt.Errorf("ingress: token fetch for %s returned status %d", token, resp.StatusCode)
	}

	var wire tokenWireEntry
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, err
	}

	return &domain.TokenCharacteristics{
		Address:      token,
		LiquidityUSD: wire.LiquidityUSD,
		MarketCapUSD: wire.MarketCapUSD,
		AgeMinutes:   wire.AgeMinutes,
		IsHoneypot:   wire.IsHoneypot,
		IsNewToken:   wire.IsNewToken,
		Source:       domain.SourcePrimaryFeed,
	}, nil
}

package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
)

// HTTPPriceProvider is a ports.PriceProvider over a REST quote feed,
// mirroring HistoryFetcher's fixed-timeout http.Client shape. C1's
// Oracle tries providers in priority order and falls back on failure,
// so a deployment wires one HTTPPriceProvider per upstream feed.
type HTTPPriceProvider struct {
	name    domain.TokenSource
	baseURL string
	client  *http.Client
}

// NewHTTPPriceProvider builds an HTTPPriceProvider identified as source
// against baseURL.
func NewHTTPPriceProvider(source domain.TokenSource, baseURL string) *HTTPPriceProvider {
	return &HTTPPriceProvider{
		name:    source,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 3 * time.Second},
	}
}

func (p *HTTPPriceProvider) Name() domain.TokenSource { return p.name }

type priceWireEntry struct {
	Price string `json:"price"`
}

// Quote implements ports.PriceProvider for a single token.
func (p *HTTPPriceProvider) Quote(ctx context.Context, token string) (ports.PriceResult, error) {
	url := fmt.Sprintf("%s/price/%s", p.baseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ports.PriceResult{}, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return ports.PriceResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ports.PriceResult{}, fmt.Errorf("ingress: price quote for %s returned status %d", token, resp.StatusCode)
	}

	var wire priceWireEntry
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return ports.PriceResult{}, err
	}
	price, err := decimal.NewFromString(wire.Price)
	if err != nil {
		return ports.PriceResult{}, err
	}

	return ports.PriceResult{OK: true, Price: price, Source: p.name, ObservedAt: time.Now().UTC()}, nil
}

// Batch implements ports.PriceProvider by quoting each token in turn;
// the upstream feed this was grounded on (history.go's per-wallet GET)
// has no native batch endpoint, so a failed token is simply omitted
// rather than failing the whole batch.
func (p *HTTPPriceProvider) Batch(ctx context.Context, tokens []string) (map[string]ports.PriceResult, error) {
	out := make(map[string]ports.PriceResult, len(tokens))
	for _, token := range tokens {
		res, err := p.Quote(ctx, token)
		if err != nil {
			continue
		}
		out[token] = res
	}
	return out, nil
}

var _ ports.PriceProvider = (*HTTPPriceProvider)(nil)

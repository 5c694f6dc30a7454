// Package pricing implements the price oracle (C1): a priority-ordered
// set of providers with per-provider cooldown, a short-TTL cache, and
// batch lookup with dedup and a parallel-singles fallback. Grounded on
// the provider-fallback shape of the teacher's websocket price feed and
// the ticker-driven monitor loop in trading/executor.go.
package pricing

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/walltrack/walltrack/internal/ports"
)

// MinValidPrice and MaxValidPrice bound what the oracle will accept from
// a provider; anything outside this range is treated as a provider
// failure rather than a success.
const (
	MinValidPrice = 1e-12
	MaxValidPrice = 1e9
)

// cooldownEntry tracks a provider temporarily taken out of rotation.
// probing marks that one caller has already been let through as a
// canary re-probe after expiry; further callers stay blocked until
// that probe resolves (success clears the entry, failure re-cools it).
type cooldownEntry struct {
	until   time.Time
	probing bool
}

type cacheEntry struct {
	result ports.PriceResult
	expiry time.Time
}

// Oracle is the C1 price lookup surface.
type Oracle struct {
	providers   []ports.PriceProvider
	cooldown    time.Duration
	cacheTTL    time.Duration
	callTimeout time.Duration

	mu        sync.Mutex
	cooldowns map[string]cooldownEntry
	cache     map[string]cacheEntry
}

// New builds an Oracle over providers in fixed priority order.
func New(providers []ports.PriceProvider, cooldown, cacheTTL, callTimeout time.Duration) *Oracle {
	return &Oracle{
		providers:   providers,
		cooldown:    cooldown,
		cacheTTL:    cacheTTL,
		callTimeout: callTimeout,
		cooldowns:   make(map[string]cooldownEntry),
		cache:       make(map[string]cacheEntry),
	}
}

// PriceOf implements `price_of(token)` (§4.1). It never blocks longer
// than the configured per-call timeout; on total provider failure it
// returns ok=false and leaves the decision to the caller.
func (o *Oracle) PriceOf(ctx context.Context, token string) ports.PriceResult {
	if cached, ok := o.fromCache(token); ok {
		return cached
	}

	ctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	for _, p := range o.providers {
		if o.inCooldown(string(p.Name())) {
			continue
		}
		res, err := p.Quote(ctx, token)
		if err != nil || !res.OK || !validPrice(res.Price.InexactFloat64()) {
			o.markCooldown(string(p.Name()))
			log.Debug().Str("provider", string(p.Name())).Str("token", token).Err(err).Msg("price provider failed, trying next")
			continue
		}
		o.clearCooldown(string(p.Name()))
		o.putCache(token, res)
		return res
	}

	return ports.PriceResult{OK: false, Error: "all providers exhausted or in cooldown"}
}

// PricesOf implements `prices_of(tokens)` (§4.1): dedup, attempt a
// per-provider batch query, and fall back to parallel singles for
// whatever the batch call did not resolve.
func (o *Oracle) PricesOf(ctx context.Context, tokens []string) map[string]ports.PriceResult {
	out := make(map[string]ports.PriceResult, len(tokens))
	unique := dedup(tokens)

	ctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	remaining := make([]string, 0, len(unique))
	for _, token := range unique {
		if cached, ok := o.fromCache(token); ok {
			out[token] = cached
		} else {
			remaining = append(remaining, token)
		}
	}

	for _, p := range o.providers {
		if len(remaining) == 0 {
			break
		}
		if o.inCooldown(string(p.Name())) {
			continue
		}
		batch, err := p.Batch(ctx, remaining)
		if err != nil {
			o.markCooldown(string(p.Name()))
			continue
		}
		o.clearCooldown(string(p.Name()))
		next := remaining[:0]
		for _, token := range remaining {
			res, ok := batch[token]
			if !ok || !res.OK || !validPrice(res.Price.InexactFloat64()) {
				next = append(next, token)
				continue
			}
			o.putCache(token, res)
			out[token] = res
		}
		remaining = next
	}

	if len(remaining) == 0 {
		return out
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, token := range remaining {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			res := o.PriceOf(ctx, token)
			mu.Lock()
			out[token] = res
			mu.Unlock()
		}(token)
	}
	wg.Wait()

	return out
}

func validPrice(p float64) bool {
	return p >= MinValidPrice && p <= MaxValidPrice
}

func dedup(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (o *Oracle) fromCache(token string) (ports.PriceResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.cache[token]
	if !ok || time.Now().After(entry.expiry) {
		return ports.PriceResult{}, false
	}
	return entry.result, true
}

func (o *Oracle) putCache(token string, res ports.PriceResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cache[token] = cacheEntry{result: res, expiry: time.Now().Add(o.cacheTTL)}
}

// inCooldown reports whether provider is currently blocked. A provider
// whose cooldown window just lapsed is not fully readmitted: exactly
// one caller is let through as a canary probe (this is that call
// returning false while leaving the entry in place with probing=true);
// every other concurrent caller still sees it as cooled down until
// clearCooldown or markCooldown resolves the probe.
func (o *Oracle) inCooldown(provider string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.cooldowns[provider]
	if !ok {
		return false
	}
	if time.Now().Before(entry.until) {
		return true
	}
	if entry.probing {
		return true
	}
	entry.probing = true
	o.cooldowns[provider] = entry
	return false
}

// clearCooldown fully readmits a provider after a successful quote,
// whether that quote was an ordinary call or a canary probe.
func (o *Oracle) clearCooldown(provider string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cooldowns, provider)
}

// markCooldown takes a provider out of rotation for o.cooldown plus a
// small jitter, so many tokens failing at once don't all re-probe the
// same provider in lockstep.
func (o *Oracle) markCooldown(provider string) {
	var jitter time.Duration
	if q := int64(o.cooldown) / 4; q > 0 {
		jitter = time.Duration(rand.Int63n(q))
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cooldowns[provider] = cooldownEntry{until: time.Now().Add(o.cooldown + jitter)}
}

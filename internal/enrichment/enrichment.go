// Package enrichment implements C2: a process-local TTL cache in front
// of the wallet store, and a token characteristics lookup that always
// degrades to a worst-case default rather than propagating a fetch
// failure into scoring.
package enrichment

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
)

// DefaultWalletCacheTTL is the 5 minute window spec §4.2 calls for.
const DefaultWalletCacheTTL = 5 * time.Minute

type walletCacheEntry struct {
	profile *domain.WalletProfile
	expiry  time.Time
}

// Enricher resolves wallet and token context for a raw swap event.
type Enricher struct {
	wallets WalletStoreLookup
	tokens  ports.TokenFetcher
	ttl     time.Duration

	mu    sync.Mutex
	cache map[string]walletCacheEntry
}

// WalletStoreLookup is the subset of ports.WalletStore the enricher needs.
type WalletStoreLookup interface {
	GetByAddress(ctx context.Context, address string) (*domain.WalletProfile, error)
}

// New builds an Enricher over a wallet store and token fetcher.
func New(wallets WalletStoreLookup, tokens ports.TokenFetcher, ttl time.Duration) *Enricher {
	if ttl <= 0 {
		ttl = DefaultWalletCacheTTL
	}
	return &Enricher{
		wallets: wallets,
		tokens:  tokens,
		ttl:     ttl,
		cache:   make(map[string]walletCacheEntry),
	}
}

// WalletProfile returns the cached or freshly-loaded profile for address.
// A cache miss with no stored record yields a synthesized conservative
// default rather than an error, so unknown wallets never block scoring.
func (e *Enricher) WalletProfile(ctx context.Context, address string) *domain.WalletProfile {
	e.mu.Lock()
	if entry, ok := e.cache[address]; ok && time.Now().Before(entry.expiry) {
		e.mu.Unlock()
		return entry.profile
	}
	e.mu.Unlock()

	profile, err := e.wallets.GetByAddress(ctx, address)
	if err != nil || profile == nil {
		if err != nil {
			log.Debug().Err(err).Str("wallet", address).Msg("wallet lookup failed, using default profile")
		}
		profile = domain.DefaultProfile(address)
	}

	e.mu.Lock()
	e.cache[address] = walletCacheEntry{profile: profile, expiry: time.Now().Add(e.ttl)}
	e.mu.Unlock()

	return profile
}

// TokenCharacteristics resolves a token's characteristics, falling back
// to the worst-case default (honeypot, new) on any fetch error.
func (e *Enricher) TokenCharacteristics(ctx context.Context, token string) *domain.TokenCharacteristics {
	chars, err := e.tokens.Fetch(ctx, token)
	if err != nil || chars == nil {
		if err != nil {
			log.Debug().Err(err).Str("token", token).Msg("token fetch failed, using worst-case default")
		}
		return domain.DefaultTokenCharacteristics(token)
	}
	return chars
}

// InvalidateWallet drops a wallet's cache entry, used after a profiling
// worker writes a fresh score so the next signal sees it immediately.
func (e *Enricher) InvalidateWallet(address string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cache, address)
}

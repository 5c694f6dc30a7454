package walletprofile

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/config"
	"github.com/walltrack/walltrack/internal/domain"
)

type fakeWalletStoreW struct {
	profiles map[string]*domain.WalletProfile
	statuses map[string]domain.WalletStatus
}

func newFakeWalletStoreW() *fakeWalletStoreW {
	return &fakeWalletStoreW{profiles: map[string]*domain.WalletProfile{}, statuses: map[string]domain.WalletStatus{}}
}
func (f *fakeWalletStoreW) GetByAddress(ctx context.Context, address string) (*domain.WalletProfile, error) {
	return f.profiles[address], nil
}
func (f *fakeWalletStoreW) Upsert(ctx context.Context, profile *domain.WalletProfile) error {
	f.profiles[profile.Address] = profile
	return nil
}
func (f *fakeWalletStoreW) UpdateStatus(ctx context.Context, address string, status domain.WalletStatus) error {
	f.statuses[address] = status
	if p, ok := f.profiles[address]; ok {
		p.Status = status
	}
	return nil
}
func (f *fakeWalletStoreW) UpdateDecay(ctx context.Context, address string, decay domain.DecayStatus, newScore float64) error {
	return nil
}
func (f *fakeWalletStoreW) ListByStatus(ctx context.Context, status domain.WalletStatus) ([]*domain.WalletProfile, error) {
	var out []*domain.WalletProfile
	for _, p := range f.profiles {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeHistoryFetcher struct {
	byWallet map[string][]domain.SwapEvent
}

func (f *fakeHistoryFetcher) FetchHistory(ctx context.Context, wallet string, limit int) ([]domain.SwapEvent, error) {
	return f.byWallet[wallet], nil
}

func TestWorkerProfilesAndWatchlists(t *testing.T) {
	store := newFakeWalletStoreW()
	store.profiles["W1"] = &domain.WalletProfile{Address: "W1", Status: domain.WalletDiscovered}

	base := time.Now().UTC().Add(-time.Hour)
	history := &fakeHistoryFetcher{byWallet: map[string][]domain.SwapEvent{
		"W1": {
			{WalletAddr: "W1", TokenAddr: "T1", Direction: domain.DirectionBuy, AmountToken: decimal.NewFromFloat(100), AmountSOL: decimal.NewFromFloat(1), BlockTime: base},
			{WalletAddr: "W1", TokenAddr: "T1", Direction: domain.DirectionSell, AmountToken: decimal.NewFromFloat(100), AmountSOL: decimal.NewFromFloat(2), BlockTime: base.Add(time.Minute)},
		},
	}}

	cfg := config.ProfilingConfig{BatchSize: 10, WatchlistMinTrades: 1, WatchlistMinWinRate: 0.5}
	w := NewWorker(store, history, cfg)
	w.sleep = func(time.Duration) {}

	w.runCycle(context.Background())

	if store.statuses["W1"] != domain.WalletActive {
		t.Fatalf("expected wallet watchlisted Active after a profitable trade, got %s", store.statuses["W1"])
	}
	status := w.Status()
	if status.LastRunProfiled != 1 || status.LastRunActive != 1 {
		t.Fatalf("expected 1 profiled, 1 active, got %+v", status)
	}
}

func TestWorkerIgnoresBelowWatchlistThreshold(t *testing.T) {
	store := newFakeWalletStoreW()
	store.profiles["W2"] = &domain.WalletProfile{Address: "W2", Status: domain.WalletDiscovered}

	base := time.Now().UTC().Add(-time.Hour)
	history := &fakeHistoryFetcher{byWallet: map[string][]domain.SwapEvent{
		"W2": {
			{WalletAddr: "W2", TokenAddr: "T1", Direction: domain.DirectionBuy, AmountToken: decimal.NewFromFloat(100), AmountSOL: decimal.NewFromFloat(2), BlockTime: base},
			{WalletAddr: "W2", TokenAddr: "T1", Direction: domain.DirectionSell, AmountToken: decimal.NewFromFloat(100), AmountSOL: decimal.NewFromFloat(1), BlockTime: base.Add(time.Minute)},
		},
	}}

	cfg := config.ProfilingConfig{BatchSize: 10, WatchlistMinTrades: 1, WatchlistMinWinRate: 0.5}
	w := NewWorker(store, history, cfg)
	w.sleep = func(time.Duration) {}
	w.runCycle(context.Background())

	if store.statuses["W2"] != domain.WalletIgnored {
		t.Fatalf("expected unprofitable wallet Ignored, got %s", store.statuses["W2"])
	}
}

func TestWorkerCircuitBreaksAfterConsecutiveErrors(t *testing.T) {
	store := &erroringWalletStore{}
	history := &fakeHistoryFetcher{}
	cfg := config.ProfilingConfig{BatchSize: 10, MaxConsecutiveErrors: 2}
	w := NewWorker(store, history, cfg)
	w.sleep = func(time.Duration) {}

	w.runCycle(context.Background())
	w.runCycle(context.Background())

	if w.Status().CurrentState != StateError {
		t.Fatalf("expected worker state Error after exceeding consecutive error threshold")
	}
}

type erroringWalletStore struct{}

func (e *erroringWalletStore) GetByAddress(ctx context.Context, address string) (*domain.WalletProfile, error) {
	return nil, nil
}
func (e *erroringWalletStore) Upsert(ctx context.Context, profile *domain.WalletProfile) error { return nil }
func (e *erroringWalletStore) UpdateStatus(ctx context.Context, address string, status domain.WalletStatus) error {
	return nil
}
func (e *erroringWalletStore) UpdateDecay(ctx context.Context, address string, decay domain.DecayStatus, newScore float64) error {
	return nil
}
func (e *erroringWalletStore) ListByStatus(ctx context.Context, status domain.WalletStatus) ([]*domain.WalletProfile, error) {
	return nil, errListFailed
}

var errListFailed = listError{}

type listError struct{}

func (listError) Error() string { return "list failed" }

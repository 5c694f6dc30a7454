package orders

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/config"
	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
	"github.com/walltrack/walltrack/internal/sizing"
)

type fakeRiskGate struct{ canTrade bool }

func (f fakeRiskGate) CanTrade() bool { return f.canTrade }

type fakePriceLookupEntry struct {
	price decimal.Decimal
	ok    bool
}

func (f fakePriceLookupEntry) PriceOf(ctx context.Context, token string) ports.PriceResult {
	return ports.PriceResult{OK: f.ok, Price: f.price}
}

type fakePortfolio struct {
	availableSOL decimal.Decimal
	allocatedSOL decimal.Decimal
	openCount    int
}

func (f fakePortfolio) AvailableBalanceSOL(ctx context.Context) decimal.Decimal { return f.availableSOL }
func (f fakePortfolio) AllocatedSOL(ctx context.Context) decimal.Decimal        { return f.allocatedSOL }
func (f fakePortfolio) OpenPositionCount(ctx context.Context) int              { return f.openCount }

type fakePositionOpener struct {
	opened []*domain.Order
	fail   bool
}

func (f *fakePositionOpener) OpenPosition(ctx context.Context, signal *domain.ScoredSignal, order *domain.Order) error {
	if f.fail {
		return errBoom
	}
	f.opened = append(f.opened, order)
	return nil
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }

func testSizingConfig() config.SizingConfig {
	return config.SizingConfig{
		SizingMode:                   config.SizingFixedPercent,
		BasePositionPct:              10,
		MinPositionSOL:               0.1,
		MaxPositionSOL:                100,
		HighConvictionMultiplier:     1.5,
		StandardConvictionMultiplier: 1.0,
		ReserveSOL:                   0,
		MaxCapitalAllocationPct:      100,
		TotalCapitalSOL:              1000,
		MinConvictionThreshold:       0.5,
	}
}

func testSignal(score float64, conviction domain.Conviction) *domain.ScoredSignal {
	return &domain.ScoredSignal{
		SignalID:   "sig-1",
		Event:      domain.SwapEvent{TxSignature: "tx1", WalletAddr: "W1", TokenAddr: "T1", Direction: domain.DirectionBuy},
		FinalScore: score,
		Conviction: conviction,
	}
}

func newTestEntryService(risk RiskGate, prices PriceLookup, portfolio Portfolio, opener PositionOpener, store *fakeOrderStore, signals *fakeSignalLog, client ports.TradeClient) *EntryService {
	executor := NewExecutor(store, client)
	sizer := sizing.NewSizer(testSizingConfig(), nil)
	return NewEntryService(risk, prices, sizer, store, signals, executor, opener, portfolio, 10)
}

func TestProcessSignalBlockedWhenSystemPaused(t *testing.T) {
	store := newFakeOrderStore()
	signals := &fakeSignalLog{}
	opener := &fakePositionOpener{}
	svc := newTestEntryService(fakeRiskGate{canTrade: false}, fakePriceLookupEntry{ok: true, price: decimal.NewFromFloat(1)},
		fakePortfolio{availableSOL: decimal.NewFromFloat(100)}, opener, store, signals, &flakyTradeClient{})

	signal := testSignal(0.9, domain.ConvictionHigh)
	order, err := svc.ProcessSignal(context.Background(), signal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order != nil {
		t.Fatalf("expected no order when system is paused, got %+v", order)
	}
	if signals.updated["sig-1"] != "Blocked" {
		t.Fatalf("expected signal marked Blocked, got %+v", signals.updated)
	}
	if len(opener.opened) != 0 {
		t.Fatalf("expected no position opened")
	}
}

func TestProcessSignalErrorsWhenNoPriceQuote(t *testing.T) {
	store := newFakeOrderStore()
	signals := &fakeSignalLog{}
	opener := &fakePositionOpener{}
	svc := newTestEntryService(fakeRiskGate{canTrade: true}, fakePriceLookupEntry{ok: false},
		fakePortfolio{availableSOL: decimal.NewFromFloat(100)}, opener, store, signals, &flakyTradeClient{})

	signal := testSignal(0.9, domain.ConvictionHigh)
	order, err := svc.ProcessSignal(context.Background(), signal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order != nil {
		t.Fatalf("expected no order without a price quote, got %+v", order)
	}
	if signals.updated["sig-1"] != "Error" {
		t.Fatalf("expected signal marked Error, got %+v", signals.updated)
	}
}

func TestProcessSignalSkipsBelowConvictionThreshold(t *testing.T) {
	store := newFakeOrderStore()
	signals := &fakeSignalLog{}
	opener := &fakePositionOpener{}
	svc := newTestEntryService(fakeRiskGate{canTrade: true}, fakePriceLookupEntry{ok: true, price: decimal.NewFromFloat(1)},
		fakePortfolio{availableSOL: decimal.NewFromFloat(100)}, opener, store, signals, &flakyTradeClient{})

	signal := testSignal(0.1, domain.ConvictionNone) // below MinConvictionThreshold=0.5
	order, err := svc.ProcessSignal(context.Background(), signal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order != nil {
		t.Fatalf("expected sizing to skip a low-score signal, got %+v", order)
	}
	if signals.updated["sig-1"] != "Failed" {
		t.Fatalf("expected signal marked Failed on sizing skip, got %+v", signals.updated)
	}
}

func TestProcessSignalFillsAndOpensPosition(t *testing.T) {
	store := newFakeOrderStore()
	signals := &fakeSignalLog{}
	opener := &fakePositionOpener{}
	svc := newTestEntryService(fakeRiskGate{canTrade: true}, fakePriceLookupEntry{ok: true, price: decimal.NewFromFloat(1)},
		fakePortfolio{availableSOL: decimal.NewFromFloat(100)}, opener, store, signals, &flakyTradeClient{fail: false})

	signal := testSignal(0.9, domain.ConvictionHigh)
	order, err := svc.ProcessSignal(context.Background(), signal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order == nil || order.Status != domain.OrderFilled {
		t.Fatalf("expected a filled order, got %+v", order)
	}
	if len(opener.opened) != 1 {
		t.Fatalf("expected a position to be opened on fill, got %d", len(opener.opened))
	}
	if signals.updated["sig-1"] != "Executed" {
		t.Fatalf("expected signal marked Executed, got %+v", signals.updated)
	}
}

func TestProcessSignalLeavesSignalUnmarkedOnRetryableFailure(t *testing.T) {
	store := newFakeOrderStore()
	signals := &fakeSignalLog{}
	opener := &fakePositionOpener{}
	svc := newTestEntryService(fakeRiskGate{canTrade: true}, fakePriceLookupEntry{ok: true, price: decimal.NewFromFloat(1)},
		fakePortfolio{availableSOL: decimal.NewFromFloat(100)}, opener, store, signals, &flakyTradeClient{fail: true})

	signal := testSignal(0.9, domain.ConvictionHigh)
	order, err := svc.ProcessSignal(context.Background(), signal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order == nil || order.Status != domain.OrderFailed {
		t.Fatalf("expected a failed but retryable order, got %+v", order)
	}
	if !order.CanRetry() {
		t.Fatalf("expected the order to still have retry budget remaining")
	}
	if _, marked := signals.updated["sig-1"]; marked {
		t.Fatalf("expected signal left unmarked so C14 picks up the retry, got %+v", signals.updated)
	}
	if len(opener.opened) != 0 {
		t.Fatalf("expected no position opened on a failed fill")
	}
}

// ProcessSignal's permanent-failure branch (marking the signal Failed
// when the freshly-created order can no longer retry) cannot be driven
// through a single call with the default 3-attempt budget — the first
// failure always leaves attempts remaining. That path, reached after
// repeated failed attempts, is covered by
// TestRetryWorkerExhaustsAndCancelsEntry in retry_worker_test.go, which
// owns exhausting an order's retry budget (C14).

package exits

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/orders"
	"github.com/walltrack/walltrack/internal/ports"
)

type fakePositionStore struct {
	saved      []domain.ExitExecution
	txAppended []string
	updated    []*domain.Position
}

func (f *fakePositionStore) Create(ctx context.Context, p *domain.Position) error { return nil }
func (f *fakePositionStore) Update(ctx context.Context, p *domain.Position) error {
	f.updated = append(f.updated, p)
	return nil
}
func (f *fakePositionStore) Get(ctx context.Context, id string) (*domain.Position, error) { return nil, nil }
func (f *fakePositionStore) ListOpen(ctx context.Context) ([]*domain.Position, error)      { return nil, nil }
func (f *fakePositionStore) SaveExitExecution(ctx context.Context, e domain.ExitExecution) error {
	f.saved = append(f.saved, e)
	return nil
}
func (f *fakePositionStore) AppendTxSignature(ctx context.Context, positionID, txSig string) error {
	f.txAppended = append(f.txAppended, txSig)
	return nil
}

type fakeStrategyLookup struct{ strategy *domain.ExitStrategy }

func (f *fakeStrategyLookup) Get(ctx context.Context, id string) (*domain.ExitStrategy, error) {
	return f.strategy, nil
}

type fakeOrderStoreExits struct{ orders map[string]*domain.Order }

func newFakeOrderStoreExits() *fakeOrderStoreExits {
	return &fakeOrderStoreExits{orders: map[string]*domain.Order{}}
}
func (f *fakeOrderStoreExits) Create(ctx context.Context, o *domain.Order) error { f.orders[o.ID] = o; return nil }
func (f *fakeOrderStoreExits) Update(ctx context.Context, o *domain.Order, fromStatus domain.OrderStatus) error {
	f.orders[o.ID] = o
	return nil
}
func (f *fakeOrderStoreExits) Get(ctx context.Context, id string) (*domain.Order, error) { return f.orders[id], nil }
func (f *fakeOrderStoreExits) GetPendingRetries(ctx context.Context, limit int) ([]*domain.Order, error) {
	return nil, nil
}
func (f *fakeOrderStoreExits) AcquireLease(ctx context.Context, orderID, owner string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (f *fakeOrderStoreExits) ReleaseLease(ctx context.Context, orderID string) error { return nil }
func (f *fakeOrderStoreExits) GetHistory(ctx context.Context, filters ports.OrderFilters) ([]*domain.Order, error) {
	return nil, nil
}
func (f *fakeOrderStoreExits) GetTimeline(ctx context.Context, orderID string) ([]domain.OrderStatusLogEntry, error) {
	return nil, nil
}
func (f *fakeOrderStoreExits) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int, error) {
	return nil, nil
}
func (f *fakeOrderStoreExits) AppendStatusLog(ctx context.Context, entry domain.OrderStatusLogEntry) error {
	return nil
}

func simplePosition(entryPrice, stopLoss float64, entryTokens float64) *domain.Position {
	return &domain.Position{
		ID:                  "pos-1",
		TokenAddress:        "T1",
		Status:              domain.PositionOpen,
		EntryPrice:          decimal.NewFromFloat(entryPrice),
		EntryAmountSOL:      decimal.NewFromFloat(entryPrice).Mul(decimal.NewFromFloat(entryTokens)),
		EntryAmountTokens:   decimal.NewFromFloat(entryTokens),
		CurrentAmountTokens: decimal.NewFromFloat(entryTokens),
		IsSimulated:         true,
		Levels: domain.PositionLevels{
			EntryPrice:    decimal.NewFromFloat(entryPrice),
			StopLossPrice: decimal.NewFromFloat(stopLoss),
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestProcessPositionStopLossClosesPosition(t *testing.T) {
	store := newFakeOrderStoreExits()
	positions := &fakePositionStore{}
	strategy := &domain.ExitStrategy{ID: "s1", Status: domain.StrategyActive}
	m := New(positions, &fakeStrategyLookup{strategy: strategy}, orders.NewExecutor(store, nil), store)

	position := simplePosition(1.0, 0.5, 100)
	err := m.ProcessPosition(context.Background(), position, decimal.NewFromFloat(0.49))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if position.Status != domain.PositionClosed {
		t.Fatalf("S2: expected position Closed, got %s", position.Status)
	}
	if position.ExitReason != domain.ExitStopLoss {
		t.Fatalf("S2: expected exit_reason=StopLoss, got %s", position.ExitReason)
	}
	if !position.CurrentAmountTokens.IsZero() {
		t.Fatalf("B3: expected zero dust residue, got %v", position.CurrentAmountTokens)
	}
	wantPnL := decimal.NewFromFloat(0.49).Sub(decimal.NewFromFloat(1.0)).Mul(decimal.NewFromFloat(100))
	if !position.RealizedPnLSOL.Equal(wantPnL) {
		t.Fatalf("S2: expected realized_pnl_sol=%v, got %v", wantPnL, position.RealizedPnLSOL)
	}
}

func TestProcessPositionTakeProfitLadderThenMoonbag(t *testing.T) {
	store := newFakeOrderStoreExits()
	positions := &fakePositionStore{}
	strategy := &domain.ExitStrategy{
		ID: "s1", Status: domain.StrategyActive,
		MoonbagPct: decimal.NewFromFloat(34),
		Rules:      []domain.ExitRule{{RuleType: domain.RuleTakeProfit, Enabled: true}},
	}
	m := New(positions, &fakeStrategyLookup{strategy: strategy}, orders.NewExecutor(store, nil), store)

	position := simplePosition(1.0, 0.1, 100)
	position.Levels.TakeProfitLevels = []domain.CalculatedLevel{
		{LevelType: "TP1", TriggerPrice: decimal.NewFromFloat(1.5), SellPercentage: decimal.NewFromFloat(50)},
		{LevelType: "TP2", TriggerPrice: decimal.NewFromFloat(2.0), SellPercentage: decimal.NewFromFloat(50)},
	}

	if err := m.ProcessPosition(context.Background(), position, decimal.NewFromFloat(1.5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if position.Status != domain.PositionPartialExit {
		t.Fatalf("S3: expected PartialExit after first TP, got %s", position.Status)
	}
	soldFirst := position.EntryAmountTokens.Sub(position.CurrentAmountTokens)
	wantSoldFirst := decimal.NewFromFloat(33) // 0.50 * (100-34)/100 = 33% of 100 tokens
	if !soldFirst.Equal(wantSoldFirst) {
		t.Fatalf("S3: expected 33 tokens sold after TP1, got %v", soldFirst)
	}

	if err := m.ProcessPosition(context.Background(), position, decimal.NewFromFloat(2.0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if position.Status != domain.PositionMoonbag || !position.IsMoonbag {
		t.Fatalf("S3: expected Moonbag after all TPs triggered, got status=%s is_moonbag=%v", position.Status, position.IsMoonbag)
	}
	wantRemaining := decimal.NewFromFloat(34)
	if !position.CurrentAmountTokens.Equal(wantRemaining) {
		t.Fatalf("S3: expected 34 tokens remaining as moonbag, got %v", position.CurrentAmountTokens)
	}
}

func TestMoonbagDisarmsTrailingStop(t *testing.T) {
	store := newFakeOrderStoreExits()
	positions := &fakePositionStore{}
	strategy := &domain.ExitStrategy{ID: "s1", Status: domain.StrategyActive, Rules: []domain.ExitRule{{RuleType: domain.RuleTrailingStop, Enabled: true, TriggerPct: decimal.NewFromFloat(-10)}}}
	m := New(positions, &fakeStrategyLookup{strategy: strategy}, orders.NewExecutor(store, nil), store)

	position := simplePosition(1.0, 0.1, 100)
	position.IsMoonbag = true
	trail := decimal.NewFromFloat(0.9)
	position.Levels.TrailingStopCurrentPrice = &trail

	if err := m.ProcessPosition(context.Background(), position, decimal.NewFromFloat(1.2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if position.Levels.TrailingStopCurrentPrice != nil {
		t.Fatalf("expected trailing stop disarmed once is_moonbag=true")
	}
}

func TestClosedPositionSkipsProcessing(t *testing.T) {
	store := newFakeOrderStoreExits()
	positions := &fakePositionStore{}
	m := New(positions, &fakeStrategyLookup{}, orders.NewExecutor(store, nil), store)

	position := simplePosition(1.0, 0.5, 100)
	position.Status = domain.PositionClosed
	if err := m.ProcessPosition(context.Background(), position, decimal.NewFromFloat(0.01)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(positions.updated) != 0 {
		t.Fatalf("expected no-op on a closed position")
	}
}

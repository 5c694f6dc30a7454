package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWalletStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewWalletStore(db)
	ctx := context.Background()

	profile := &domain.WalletProfile{
		Address: "W1", Status: domain.WalletDiscovered, Score: 0.3, DecayStatus: domain.DecayOk,
	}
	if err := store.Upsert(ctx, profile); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.GetByAddress(ctx, "W1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Score != 0.3 || got.Status != domain.WalletDiscovered {
		t.Fatalf("unexpected round-tripped profile: %+v", got)
	}

	if err := store.UpdateStatus(ctx, "W1", domain.WalletActive); err != nil {
		t.Fatalf("update status: %v", err)
	}
	listed, err := store.ListByStatus(ctx, domain.WalletActive)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].Address != "W1" {
		t.Fatalf("expected W1 listed under Active, got %+v", listed)
	}

	if err := store.UpdateDecay(ctx, "W1", domain.DecayFlagged, 0.24); err != nil {
		t.Fatalf("update decay: %v", err)
	}
	got, _ = store.GetByAddress(ctx, "W1")
	if got.DecayStatus != domain.DecayFlagged || got.Score != 0.24 {
		t.Fatalf("expected decay update to persist, got %+v", got)
	}
}

func TestOrderStoreLeaseAndConditionalUpdate(t *testing.T) {
	db := openTestDB(t)
	store := NewOrderStore(db)
	ctx := context.Background()

	order := domain.NewOrder(domain.KindEntry, domain.OrderBuy, "TOKEN1", decimal.NewFromFloat(1), decimal.NewFromFloat(0.001), 300)
	if err := store.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}

	acquired, err := store.AcquireLease(ctx, order.ID, "owner-1", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("expected lease acquired, got %v err=%v", acquired, err)
	}
	acquiredAgain, err := store.AcquireLease(ctx, order.ID, "owner-2", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquiredAgain {
		t.Fatalf("expected second lease acquisition to fail while first is held")
	}
	if err := store.ReleaseLease(ctx, order.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	order.Status = domain.OrderSubmitted
	if err := store.Update(ctx, order, domain.OrderPending); err != nil {
		t.Fatalf("conditional update from Pending: %v", err)
	}

	order.Status = domain.OrderConfirming
	if err := store.Update(ctx, order, domain.OrderPending); err != domain.ErrConcurrentModification {
		t.Fatalf("expected ErrConcurrentModification on stale fromStatus, got %v", err)
	}

	got, err := store.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.OrderSubmitted {
		t.Fatalf("expected status to remain Submitted after rejected CAS, got %s", got.Status)
	}
}

func TestOrderStoreGetPendingRetriesAndTimeline(t *testing.T) {
	db := openTestDB(t)
	store := NewOrderStore(db)
	ctx := context.Background()

	o1 := domain.NewOrder(domain.KindEntry, domain.OrderBuy, "TOKEN1", decimal.NewFromFloat(1), decimal.NewFromFloat(0.001), 300)
	o1.NextRetryAt = time.Now().UTC().Add(time.Minute)
	if err := store.Create(ctx, o1); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.AppendStatusLog(ctx, domain.OrderStatusLogEntry{
		OrderID: o1.ID, ChangedAt: time.Now().UTC(), OldStatus: domain.OrderPending, NewStatus: domain.OrderSubmitted,
		Detail: "submitted to venue",
	}); err != nil {
		t.Fatalf("append status log: %v", err)
	}

	pending, err := store.GetPendingRetries(ctx, 10)
	if err != nil {
		t.Fatalf("get pending retries: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending/failed order, got %d", len(pending))
	}

	timeline, err := store.GetTimeline(ctx, o1.ID)
	if err != nil {
		t.Fatalf("get timeline: %v", err)
	}
	if len(timeline) != 1 || timeline[0].Detail != "submitted to venue" {
		t.Fatalf("unexpected timeline: %+v", timeline)
	}

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count by status: %v", err)
	}
	if counts[domain.OrderPending] != 1 {
		t.Fatalf("expected 1 Pending order, got counts=%+v", counts)
	}
}

func TestPositionStoreRoundTripWithLevels(t *testing.T) {
	db := openTestDB(t)
	store := NewPositionStore(db)
	ctx := context.Background()

	moonbagStop := decimal.NewFromFloat(0.0005)
	pos := &domain.Position{
		ID: "P1", TokenAddress: "TOKEN1", WalletAddress: "W1", Status: domain.PositionOpen,
		EntryPrice: decimal.NewFromFloat(0.001), EntryAmountSOL: decimal.NewFromFloat(1),
		EntryAmountTokens: decimal.NewFromFloat(1000), CurrentAmountTokens: decimal.NewFromFloat(1000),
		ConvictionTier: domain.ConvictionHigh,
		Levels: domain.PositionLevels{
			EntryPrice: decimal.NewFromFloat(0.001), StopLossPrice: decimal.NewFromFloat(0.0008),
			MoonbagStopPrice: &moonbagStop,
			TakeProfitLevels: []domain.CalculatedLevel{
				{LevelType: "TP1", TriggerPrice: decimal.NewFromFloat(0.002), SellPercentage: decimal.NewFromFloat(33)},
			},
		},
		ExitTxSignatures: []string{},
		RealizedPnLSOL:   decimal.Zero,
		UnrealizedPnLSOL: decimal.Zero,
		CreatedAt:        time.Now().UTC(),
	}

	if err := store.Create(ctx, pos); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, "P1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatalf("expected position to round-trip")
	}
	if len(got.Levels.TakeProfitLevels) != 1 || got.Levels.TakeProfitLevels[0].LevelType != "TP1" {
		t.Fatalf("expected TP ladder to round-trip, got %+v", got.Levels.TakeProfitLevels)
	}
	if got.Levels.MoonbagStopPrice == nil || !got.Levels.MoonbagStopPrice.Equal(moonbagStop) {
		t.Fatalf("expected moonbag stop price to round-trip, got %+v", got.Levels.MoonbagStopPrice)
	}

	if err := store.AppendTxSignature(ctx, "P1", "sig-1"); err != nil {
		t.Fatalf("append tx signature: %v", err)
	}
	got, _ = store.Get(ctx, "P1")
	if len(got.ExitTxSignatures) != 1 || got.ExitTxSignatures[0] != "sig-1" {
		t.Fatalf("expected exit tx signature to persist, got %+v", got.ExitTxSignatures)
	}

	open, err := store.ListOpen(ctx)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(open))
	}
}

func TestSystemStateStoreCompareAndSwap(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	store, err := NewSystemStateStore(ctx, db)
	if err != nil {
		t.Fatalf("new system state store: %v", err)
	}

	st, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.Status != domain.StatusRunning || st.Version != 1 {
		t.Fatalf("expected seeded Running state at version 1, got %+v", st)
	}

	next := *st
	next.Status = domain.StatusPausedManual
	next.PausedBy = "operator"
	ok, err := store.CompareAndSwap(ctx, &next, st.Version)
	if err != nil || !ok {
		t.Fatalf("expected CAS to succeed, ok=%v err=%v", ok, err)
	}

	staleNext := *st
	staleNext.Status = domain.StatusPausedDrawdown
	ok, err = store.CompareAndSwap(ctx, &staleNext, st.Version)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected stale CAS to fail, version has already advanced")
	}
}

func TestExitStrategyStoreArchivesPreviousActiveOnActivate(t *testing.T) {
	db := openTestDB(t)
	store := NewExitStrategyStore(db)
	ctx := context.Background()

	v1 := &domain.ExitStrategy{
		ID: "S1", Name: "default", Version: 1, Status: domain.StrategyActive,
		Rules: []domain.ExitRule{{RuleType: domain.RuleStopLoss, TriggerPct: decimal.NewFromFloat(-20), ExitPct: decimal.NewFromFloat(100), Priority: 1, Enabled: true}},
		MoonbagPct: decimal.Zero,
	}
	if err := store.Save(ctx, v1); err != nil {
		t.Fatalf("save v1: %v", err)
	}

	v2 := &domain.ExitStrategy{
		ID: "S2", Name: "default", Version: 2, Status: domain.StrategyActive,
		Rules:      v1.Rules,
		MoonbagPct: decimal.Zero,
	}
	if err := store.Save(ctx, v2); err != nil {
		t.Fatalf("save v2: %v", err)
	}

	active, err := store.GetActive(ctx, "default")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active.ID != "S2" {
		t.Fatalf("expected v2 active, got %+v", active)
	}

	archived, err := store.Get(ctx, "S1")
	if err != nil {
		t.Fatalf("get v1: %v", err)
	}
	if archived.Status != domain.StrategyArchived {
		t.Fatalf("expected v1 archived after v2 activation, got %s", archived.Status)
	}
}

func TestQueueStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewQueueStore(db)
	ctx := context.Background()

	q := domain.QueuedSignal{
		ID: "Q1", SignalID: "SIG1", EnqueuedAt: time.Now().UTC(), ExpiresAt: time.Now().UTC().Add(time.Hour),
		SignalPayload: domain.ScoredSignal{SignalID: "SIG1"},
	}
	if err := store.Enqueue(ctx, q); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	listed, err := store.List(ctx)
	if err != nil || len(listed) != 1 {
		t.Fatalf("expected 1 queued entry, got %d err=%v", len(listed), err)
	}
	if err := store.Dequeue(ctx, "Q1"); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	listed, _ = store.List(ctx)
	if len(listed) != 0 {
		t.Fatalf("expected queue empty after dequeue, got %d", len(listed))
	}
}

func TestEventLogAppendsAcrossAllKinds(t *testing.T) {
	db := openTestDB(t)
	log := NewEventLog(db)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := log.AppendCircuitBreakerTrigger(ctx, domain.CircuitBreakerTrigger{ID: "CB1", BreakerType: domain.BreakerDrawdown, CreatedAt: now}); err != nil {
		t.Fatalf("circuit breaker: %v", err)
	}
	if err := log.AppendSystemStateEvent(ctx, domain.SystemStateEvent{ID: "SE1", FromStatus: domain.StatusRunning, ToStatus: domain.StatusPausedManual, At: now}); err != nil {
		t.Fatalf("system state event: %v", err)
	}
	if err := log.AppendPositionSlotEvent(ctx, domain.PositionSlotEvent{ID: "PS1", Kind: domain.SlotEventEnqueued, At: now}); err != nil {
		t.Fatalf("position slot event: %v", err)
	}
	if err := log.AppendScoreUpdate(ctx, domain.ScoreUpdate{ID: "SU1", WalletAddress: "W1", At: now}); err != nil {
		t.Fatalf("score update: %v", err)
	}
	if err := log.AppendTradeOutcome(ctx, domain.TradeOutcome{ID: "TO1", WalletAddress: "W1", ClosedAt: now}); err != nil {
		t.Fatalf("trade outcome: %v", err)
	}
	if err := log.AppendDecayEvent(ctx, domain.DecayEvent{ID: "DE1", WalletAddress: "W1", OldStatus: domain.DecayOk, NewStatus: domain.DecayFlagged, At: now}); err != nil {
		t.Fatalf("decay event: %v", err)
	}
}

func TestEventLogRecentTradeOutcomesNewestFirst(t *testing.T) {
	db := openTestDB(t)
	log := NewEventLog(db)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	outcomes := []domain.TradeOutcome{
		{ID: "TO1", WalletAddress: "W1", TokenAddress: "TKA", PnLSOL: 1.5, IsWin: true, HoldDuration: 2 * time.Minute, ClosedAt: base},
		{ID: "TO2", WalletAddress: "W1", TokenAddress: "TKB", PnLSOL: -0.5, IsWin: false, HoldDuration: time.Minute, ClosedAt: base.Add(time.Minute)},
		{ID: "TO3", WalletAddress: "W2", TokenAddress: "TKC", PnLSOL: 0.25, IsWin: true, HoldDuration: 3 * time.Minute, ClosedAt: base.Add(2 * time.Minute)},
	}
	for _, o := range outcomes {
		if err := log.AppendTradeOutcome(ctx, o); err != nil {
			t.Fatalf("append trade outcome %s: %v", o.ID, err)
		}
	}

	got, err := log.RecentTradeOutcomes(ctx, 2)
	if err != nil {
		t.Fatalf("recent trade outcomes: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].ID != "TO3" || got[1].ID != "TO2" {
		t.Fatalf("expected newest-first [TO3 TO2], got [%s %s]", got[0].ID, got[1].ID)
	}
	if !got[0].IsWin || got[1].IsWin {
		t.Fatalf("is_win not round-tripped correctly: %+v %+v", got[0], got[1])
	}
	if got[0].HoldDuration != 3*time.Minute {
		t.Fatalf("hold duration not round-tripped: got %v", got[0].HoldDuration)
	}
}

func TestSignalLogAppendAndLookup(t *testing.T) {
	db := openTestDB(t)
	log := NewSignalLog(db)
	ctx := context.Background()

	sig := &domain.ScoredSignal{
		SignalID: "SIG1",
		Event:    domain.SwapEvent{TxSignature: "TX1", WalletAddr: "W1", TokenAddr: "TOKEN1", Direction: domain.DirectionBuy, AmountToken: decimal.NewFromFloat(100), AmountSOL: decimal.NewFromFloat(1)},
		FinalScore: 0.8, Eligibility: domain.EligibilityEligible, Conviction: domain.ConvictionHigh,
	}
	if err := log.Append(ctx, sig); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := log.GetByTxSignature(ctx, "TX1")
	if err != nil {
		t.Fatalf("get by tx: %v", err)
	}
	if got == nil || got.SignalID != "SIG1" || got.FinalScore != 0.8 {
		t.Fatalf("unexpected signal round-trip: %+v", got)
	}

	if err := log.UpdateExecutionStatus(ctx, "SIG1", "Executed", ""); err != nil {
		t.Fatalf("update execution status: %v", err)
	}
	got, _ = log.GetByTxSignature(ctx, "TX1")
	if got.ExecutionStatus != "Executed" {
		t.Fatalf("expected execution status to persist, got %s", got.ExecutionStatus)
	}
}

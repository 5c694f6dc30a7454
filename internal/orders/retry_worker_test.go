package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
)

type fakeOrderStore struct {
	orders     map[string]*domain.Order
	logs       []domain.OrderStatusLogEntry
	leasedTo   map[string]string
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: map[string]*domain.Order{}, leasedTo: map[string]string{}}
}

func (f *fakeOrderStore) Create(ctx context.Context, o *domain.Order) error { f.orders[o.ID] = o; return nil }
func (f *fakeOrderStore) Update(ctx context.Context, o *domain.Order, fromStatus domain.OrderStatus) error {
	f.orders[o.ID] = o
	return nil
}
func (f *fakeOrderStore) Get(ctx context.Context, id string) (*domain.Order, error) { return f.orders[id], nil }
func (f *fakeOrderStore) GetPendingRetries(ctx context.Context, limit int) ([]*domain.Order, error) {
	var out []*domain.Order
	for _, o := range f.orders {
		if (o.Status == domain.OrderFailed || o.Status == domain.OrderPending) && !o.NextRetryAt.After(time.Now().UTC()) {
			out = append(out, o)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
func (f *fakeOrderStore) AcquireLease(ctx context.Context, orderID, owner string, ttl time.Duration) (bool, error) {
	if _, held := f.leasedTo[orderID]; held {
		return false, nil
	}
	f.leasedTo[orderID] = owner
	return true, nil
}
func (f *fakeOrderStore) ReleaseLease(ctx context.Context, orderID string) error {
	delete(f.leasedTo, orderID)
	return nil
}
func (f *fakeOrderStore) GetHistory(ctx context.Context, filters ports.OrderFilters) ([]*domain.Order, error) {
	return nil, nil
}
func (f *fakeOrderStore) GetTimeline(ctx context.Context, orderID string) ([]domain.OrderStatusLogEntry, error) {
	return nil, nil
}
func (f *fakeOrderStore) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int, error) {
	return nil, nil
}
func (f *fakeOrderStore) AppendStatusLog(ctx context.Context, entry domain.OrderStatusLogEntry) error {
	f.logs = append(f.logs, entry)
	return nil
}

type fakeSignalLog struct {
	updated map[string]string
}

func (f *fakeSignalLog) Append(ctx context.Context, s *domain.ScoredSignal) error { return nil }
func (f *fakeSignalLog) UpdateExecutionStatus(ctx context.Context, signalID, status, reason string) error {
	if f.updated == nil {
		f.updated = map[string]string{}
	}
	f.updated[signalID] = status
	return nil
}
func (f *fakeSignalLog) GetByTxSignature(ctx context.Context, txSignature string) (*domain.ScoredSignal, error) {
	return nil, nil
}

type flakyTradeClient struct{ fail bool }

func (c *flakyTradeClient) Swap(ctx context.Context, req ports.SwapRequest) (ports.SwapResult, error) {
	if c.fail {
		return ports.SwapResult{}, errors.New("flaky failure")
	}
	return ports.SwapResult{TxSignature: "tx1", OutputAmount: decimal.NewFromFloat(100), Status: domain.OrderFilled}, nil
}

func TestRetrySortsExitsBeforeEntries(t *testing.T) {
	entry := domain.NewOrder(domain.KindEntry, domain.OrderBuy, "T1", decimal.NewFromFloat(1), decimal.NewFromFloat(1), 100)
	entry.NextRetryAt = time.Now().UTC()
	exit := domain.NewOrder(domain.KindExit, domain.OrderSell, "T2", decimal.NewFromFloat(1), decimal.NewFromFloat(1), 100)
	exit.NextRetryAt = time.Now().UTC().Add(time.Minute)

	orders := []*domain.Order{entry, exit}
	sortExitsFirst(orders)
	if orders[0].Kind != domain.KindExit {
		t.Fatalf("expected exit order first regardless of next_retry_at, got %+v", orders[0])
	}
}

func TestRetryWorkerReArmsAndSucceeds(t *testing.T) {
	store := newFakeOrderStore()
	signals := &fakeSignalLog{}
	client := &flakyTradeClient{fail: false}
	executor := NewExecutor(store, client)
	worker := NewRetryWorker(store, signals, executor, RetryWorkerConfig{BatchSize: 10})

	order := domain.NewOrder(domain.KindEntry, domain.OrderBuy, "T1", decimal.NewFromFloat(1), decimal.NewFromFloat(1), 100)
	order.Status = domain.OrderFailed
	order.AttemptCount = 1
	order.NextRetryAt = time.Now().UTC().Add(-time.Second)
	store.orders[order.ID] = order

	worker.processOne(context.Background(), order)

	if order.Status != domain.OrderFilled {
		t.Fatalf("expected order to be re-armed and filled, got %s", order.Status)
	}
	if worker.Metrics().Succeeded != 1 {
		t.Fatalf("expected 1 success recorded, got %+v", worker.Metrics())
	}
	if _, held := store.leasedTo[order.ID]; held {
		t.Fatalf("expected lease to be released after processing")
	}
}

func TestRetryWorkerExhaustsAndCancelsEntry(t *testing.T) {
	store := newFakeOrderStore()
	signals := &fakeSignalLog{}
	client := &flakyTradeClient{fail: true}
	executor := NewExecutor(store, client)
	worker := NewRetryWorker(store, signals, executor, RetryWorkerConfig{BatchSize: 10})

	order := domain.NewOrder(domain.KindEntry, domain.OrderBuy, "T1", decimal.NewFromFloat(1), decimal.NewFromFloat(1), 100)
	order.Status = domain.OrderFailed
	order.AttemptCount = order.MaxAttempts
	order.SignalID = "sig-1"
	store.orders[order.ID] = order

	worker.processOne(context.Background(), order)

	if order.Status != domain.OrderCancelled {
		t.Fatalf("expected exhausted order to be Cancelled, got %s", order.Status)
	}
	if signals.updated["sig-1"] != "Failed" {
		t.Fatalf("expected originating signal marked Failed, got %+v", signals.updated)
	}
}

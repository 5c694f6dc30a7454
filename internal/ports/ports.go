// Package ports declares every interface the core depends on but does
// not implement: price/trade/token feeds, the cluster graph, and the
// persistence stores. Concrete adapters live under internal/storage and
// internal/ingress; the composition root wires them together.
package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/domain"
)

// PriceResult is the outcome of a single price_of call (C1).
type PriceResult struct {
	OK         bool
	Price      decimal.Decimal
	Source     domain.TokenSource
	ObservedAt time.Time
	Error      string
}

// PriceProvider is a single upstream price feed, tried in priority order.
type PriceProvider interface {
	Name() domain.TokenSource
	Quote(ctx context.Context, token string) (PriceResult, error)
	Batch(ctx context.Context, tokens []string) (map[string]PriceResult, error)
}

// SwapRequest is what the executor asks a TradeClient to perform.
type SwapRequest struct {
	TokenAddress   string
	Side           domain.OrderSide
	AmountSOL      decimal.Decimal
	MaxSlippageBps int
}

// SwapResult is what a TradeClient returns for an attempted swap.
type SwapResult struct {
	TxSignature  string
	OutputAmount decimal.Decimal
	Status       domain.OrderStatus
	Error        string
}

// TradeClient executes a swap against whichever venue backs it
// (on-chain DEX aggregator, or the simulated adapter in test/dev mode).
type TradeClient interface {
	Swap(ctx context.Context, req SwapRequest) (SwapResult, error)
}

// TokenFetcher resolves characteristics for a token address.
type TokenFetcher interface {
	Fetch(ctx context.Context, token string) (*domain.TokenCharacteristics, error)
}

// SwapHistoryFetcher resolves a wallet's capped on-chain swap history,
// newest first, for C15/C16's FIFO trade matching and behavioral profiling.
type SwapHistoryFetcher interface {
	FetchHistory(ctx context.Context, wallet string, limit int) ([]domain.SwapEvent, error)
}

// ClusterService is the sole dependency on the external wallet graph.
// Graph internals never live in the core.
type ClusterService interface {
	GetClusterFor(ctx context.Context, wallet string) (domain.ClusterInfo, error)
}

// WalletStore persists WalletProfile records.
type WalletStore interface {
	GetByAddress(ctx context.Context, address string) (*domain.WalletProfile, error)
	Upsert(ctx context.Context, profile *domain.WalletProfile) error
	UpdateStatus(ctx context.Context, address string, status domain.WalletStatus) error
	UpdateDecay(ctx context.Context, address string, decay domain.DecayStatus, newScore float64) error
	ListByStatus(ctx context.Context, status domain.WalletStatus) ([]*domain.WalletProfile, error)
}

// OrderFilters narrows an order_history query.
type OrderFilters struct {
	Status   domain.OrderStatus
	Kind     domain.OrderKind
	Token    string
	Since    time.Time
	Limit    int
	Offset   int
}

// OrderStore persists Order rows and their append-only status log.
type OrderStore interface {
	Create(ctx context.Context, o *domain.Order) error
	// Update writes o back iff the stored row's status still equals
	// fromStatus (conditional update keyed on status).
	Update(ctx context.Context, o *domain.Order, fromStatus domain.OrderStatus) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	GetPendingRetries(ctx context.Context, limit int) ([]*domain.Order, error)
	AcquireLease(ctx context.Context, orderID, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, orderID string) error
	GetHistory(ctx context.Context, filters OrderFilters) ([]*domain.Order, error)
	GetTimeline(ctx context.Context, orderID string) ([]domain.OrderStatusLogEntry, error)
	CountByStatus(ctx context.Context) (map[domain.OrderStatus]int, error)
	AppendStatusLog(ctx context.Context, entry domain.OrderStatusLogEntry) error
}

// PositionStore persists Position rows and their exit executions.
type PositionStore interface {
	Create(ctx context.Context, p *domain.Position) error
	Update(ctx context.Context, p *domain.Position) error
	Get(ctx context.Context, id string) (*domain.Position, error)
	ListOpen(ctx context.Context) ([]*domain.Position, error)
	SaveExitExecution(ctx context.Context, e domain.ExitExecution) error
	AppendTxSignature(ctx context.Context, positionID, txSig string) error
}

// SignalLog is the append-only, update-in-place-on-status log of scored signals.
type SignalLog interface {
	Append(ctx context.Context, s *domain.ScoredSignal) error
	UpdateExecutionStatus(ctx context.Context, signalID, status, reason string) error
	GetByTxSignature(ctx context.Context, txSignature string) (*domain.ScoredSignal, error)
}

// EventLog is the append-only sink for circuit-breaker triggers, decay
// events, and position-slot events.
type EventLog interface {
	AppendCircuitBreakerTrigger(ctx context.Context, t domain.CircuitBreakerTrigger) error
	AppendSystemStateEvent(ctx context.Context, e domain.SystemStateEvent) error
	AppendPositionSlotEvent(ctx context.Context, e domain.PositionSlotEvent) error
	AppendScoreUpdate(ctx context.Context, u domain.ScoreUpdate) error
	AppendTradeOutcome(ctx context.Context, o domain.TradeOutcome) error
	AppendDecayEvent(ctx context.Context, e domain.DecayEvent) error
}

// QueueStore is the persisted mirror of the in-memory admission FIFO (C8).
// The in-memory queue is authoritative for ordering; this store exists
// so the queue can be reconstructed after a restart.
type QueueStore interface {
	Enqueue(ctx context.Context, q domain.QueuedSignal) error
	Dequeue(ctx context.Context, id string) error
	List(ctx context.Context) ([]domain.QueuedSignal, error)
}

// ExitStrategyStore resolves and persists named exit strategies.
type ExitStrategyStore interface {
	GetActive(ctx context.Context, name string) (*domain.ExitStrategy, error)
	Get(ctx context.Context, id string) (*domain.ExitStrategy, error)
	Save(ctx context.Context, s *domain.ExitStrategy) error
}

// SystemStateStore persists the singleton SystemState row with
// optimistic concurrency on Version.
type SystemStateStore interface {
	Get(ctx context.Context) (*domain.SystemState, error)
	// CompareAndSwap writes next iff the stored row's Version equals expectedVersion.
	CompareAndSwap(ctx context.Context, next *domain.SystemState, expectedVersion int64) (bool, error)
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderKind distinguishes entries from exits (spec.md §3).
type OrderKind string

const (
	KindEntry OrderKind = "Entry"
	KindExit  OrderKind = "Exit"
)

// OrderSide mirrors Direction but is kept distinct since an Order's side
// is a decision, not an observation.
type OrderSide string

const (
	OrderBuy  OrderSide = "Buy"
	OrderSell OrderSide = "Sell"
)

// OrderStatus is the order state machine (spec.md §4.13).
type OrderStatus string

const (
	OrderPending    OrderStatus = "Pending"
	OrderSubmitted  OrderStatus = "Submitted"
	OrderConfirming OrderStatus = "Confirming"
	OrderFilled     OrderStatus = "Filled"
	OrderFailed     OrderStatus = "Failed"
	OrderCancelled  OrderStatus = "Cancelled"
)

// validOrderTransitions enumerates the allowed predecessor -> successor
// edges of the order state machine. A transition not listed here is
// rejected by Order.Transition (I1).
var validOrderTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderPending:    {OrderSubmitted: true, OrderCancelled: true},
	OrderSubmitted:  {OrderConfirming: true, OrderFailed: true},
	OrderConfirming: {OrderFilled: true, OrderFailed: true},
	OrderFailed:     {OrderPending: true, OrderCancelled: true},
}

// DefaultMaxAttempts is the default retry budget for an order.
const DefaultMaxAttempts = 3

// DefaultRetryDelays is RETRY_DELAYS from spec.md §4.14/§6.
var DefaultRetryDelays = []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second}

// Order is a single submitted swap, entry or exit.
type Order struct {
	ID             string
	Kind           OrderKind
	Side           OrderSide
	SignalID       string
	PositionID     string
	TokenAddress   string
	AmountSOL      decimal.Decimal
	AmountTokens   decimal.Decimal
	ExpectedPrice  decimal.Decimal
	ActualPrice    decimal.Decimal
	MaxSlippageBps int
	TxSignature    string
	Status         OrderStatus
	AttemptCount   int
	MaxAttempts    int
	NextRetryAt    time.Time
	LastError      string
	LeaseOwner     string
	LeaseUntil     time.Time
	IsSimulated    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	FilledAt       time.Time
}

// NewOrder constructs a Pending order with validated defaults.
func NewOrder(kind OrderKind, side OrderSide, tokenAddr string, amountSOL, expectedPrice decimal.Decimal, maxSlippageBps int) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:             NewID(),
		Kind:           kind,
		Side:           side,
		TokenAddress:   tokenAddr,
		AmountSOL:      amountSOL,
		ExpectedPrice:  expectedPrice,
		MaxSlippageBps: maxSlippageBps,
		Status:         OrderPending,
		MaxAttempts:    DefaultMaxAttempts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// CanTransition reports whether moving to `to` is a legal edge from the
// order's current status.
func (o *Order) CanTransition(to OrderStatus) bool {
	edges, ok := validOrderTransitions[o.Status]
	if !ok {
		return false
	}
	return edges[to]
}

// Transition applies a status change iff it is a legal edge (I1);
// otherwise the order is left unchanged and an error is returned.
func (o *Order) Transition(to OrderStatus) error {
	if !o.CanTransition(to) {
		return &InvalidTransitionError{Entity: "Order", From: string(o.Status), To: string(to)}
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// SlippageBps computes |actual-expected|/expected * 10000, rounded, per I2.
// Returns zero if either price is not yet known.
func (o *Order) SlippageBps() int64 {
	if o.ActualPrice.IsZero() || o.ExpectedPrice.IsZero() {
		return 0
	}
	diff := o.ActualPrice.Sub(o.ExpectedPrice).Abs()
	bps := diff.Div(o.ExpectedPrice).Mul(decimal.NewFromInt(10000))
	return bps.Round(0).IntPart()
}

// CanRetry reports whether another attempt is allowed under the retry budget.
func (o *Order) CanRetry() bool {
	return o.AttemptCount < o.MaxAttempts
}

// NextRetryDelay returns the backoff delay for the order's current
// attempt count, clamped to the last configured delay once attempts
// exceed the configured table (I3: monotonically increasing per RETRY_DELAYS).
func NextRetryDelay(attemptCount int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		delays = DefaultRetryDelays
	}
	idx := attemptCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(delays) {
		idx = len(delays) - 1
	}
	return delays[idx]
}

// OrderStatusLogEntry is one row of the append-only order_status_log,
// surfaced as the "timeline" projection in the order-detail query (§6).
type OrderStatusLogEntry struct {
	OrderID   string
	ChangedAt time.Time
	OldStatus OrderStatus
	NewStatus OrderStatus
	Detail    string
}

// InvalidTransitionError is a pre-condition failure (spec.md §7):
// fatal to the operation, never to the worker.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return e.Entity + ": invalid transition " + e.From + " -> " + e.To
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a wallet's swap.
type Direction string

const (
	DirectionBuy  Direction = "Buy"
	DirectionSell Direction = "Sell"
)

// SwapEvent is the immutable input fact emitted by the ingress adapter.
// It is deduplicated by TxSignature and never mutated after creation.
type SwapEvent struct {
	TxSignature  string
	WalletAddr   string
	TokenAddr    string
	Direction    Direction
	AmountToken  decimal.Decimal
	AmountSOL    decimal.Decimal
	Slot         uint64
	BlockTime    time.Time
}

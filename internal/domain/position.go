package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is a position's lifecycle stage.
type PositionStatus string

const (
	PositionOpen        PositionStatus = "Open"
	PositionPartialExit PositionStatus = "PartialExit"
	PositionMoonbag      PositionStatus = "Moonbag"
	PositionClosed       PositionStatus = "Closed"
)

// ExitReason tags why a position closed or partially closed.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "StopLoss"
	ExitTrailingStop ExitReason = "TrailingStop"
	ExitTakeProfit   ExitReason = "TakeProfit"
	ExitTimeLimit    ExitReason = "TimeLimit"
	ExitStagnation   ExitReason = "Stagnation"
	ExitManual       ExitReason = "Manual"
)

// CalculatedLevel is one rung of the take-profit ladder.
type CalculatedLevel struct {
	LevelType      string // descriptive label, e.g. "TP1"
	TriggerPrice   decimal.Decimal
	SellPercentage decimal.Decimal // of entry_amount_tokens, (0,100]
	IsTriggered    bool
	TriggeredAt    time.Time
}

// PositionLevels holds every price threshold derived from the bound
// exit strategy at entry time.
type PositionLevels struct {
	EntryPrice               decimal.Decimal
	StopLossPrice            decimal.Decimal
	MoonbagStopPrice         *decimal.Decimal
	TrailingStopCurrentPrice *decimal.Decimal
	TakeProfitLevels         []CalculatedLevel // ascending by TriggerPrice
}

// NextTakeProfit returns the first non-triggered TP level, or nil if all
// have fired (ties bind to the first candle that crosses in ascending order).
func (l *PositionLevels) NextTakeProfit() *CalculatedLevel {
	for i := range l.TakeProfitLevels {
		if !l.TakeProfitLevels[i].IsTriggered {
			return &l.TakeProfitLevels[i]
		}
	}
	return nil
}

// AllTakeProfitsTriggered reports whether every TP rung has fired.
func (l *PositionLevels) AllTakeProfitsTriggered() bool {
	for _, tp := range l.TakeProfitLevels {
		if !tp.IsTriggered {
			return false
		}
	}
	return len(l.TakeProfitLevels) > 0
}

// ExitExecution records one sell against a position (partial or full).
type ExitExecution struct {
	PositionID    string
	Reason        ExitReason
	TriggerLevel  string
	TokensSold    decimal.Decimal
	SOLReceived   decimal.Decimal
	PnLSOL        decimal.Decimal
	TxSignature   string
	ExecutedAt    time.Time
}

// Position is an open or closed trading position (spec.md §3).
type Position struct {
	ID                 string
	SignalID           string
	TokenAddress       string
	WalletAddress      string
	Status             PositionStatus
	EntryPrice         decimal.Decimal
	EntryAmountSOL     decimal.Decimal
	EntryAmountTokens  decimal.Decimal
	CurrentAmountTokens decimal.Decimal
	PeakPrice          *decimal.Decimal
	LastPriceCheck     *time.Time
	ConvictionTier     Conviction
	ExitStrategyID     string
	Levels             PositionLevels
	ExitTxSignatures   []string
	RealizedPnLSOL     decimal.Decimal
	UnrealizedPnLSOL   decimal.Decimal
	ExitTime           *time.Time
	ExitReason         ExitReason
	ExitPrice          *decimal.Decimal
	IsMoonbag          bool
	IsSimulated        bool
	ClusterID          string

	// StagnationWindowStart and StagnationWindowSetAt back 4.12.a.
	StagnationWindowStart decimal.Decimal
	StagnationWindowSetAt time.Time

	CreatedAt time.Time
}

// SoldTokens returns the sum of tokens sold across all exit executions,
// derived from the invariant entry = current + sold rather than stored.
func (p *Position) SoldTokens() decimal.Decimal {
	return p.EntryAmountTokens.Sub(p.CurrentAmountTokens)
}

// IsClosed reports whether the position has fully exited (I4).
func (p *Position) IsClosed() bool {
	return p.Status == PositionClosed
}

// ExitStrategyStatus is the lifecycle of a named strategy version.
type ExitStrategyStatus string

const (
	StrategyDraft    ExitStrategyStatus = "Draft"
	StrategyActive   ExitStrategyStatus = "Active"
	StrategyArchived ExitStrategyStatus = "Archived"
)

// ExitRuleType distinguishes the rule kinds a strategy may compose.
type ExitRuleType string

const (
	RuleStopLoss     ExitRuleType = "StopLoss"
	RuleTakeProfit   ExitRuleType = "TakeProfit"
	RuleTrailingStop ExitRuleType = "TrailingStop"
	RuleTimeBased    ExitRuleType = "TimeBased"
)

// ExitRule is one row of an ExitStrategy's rule set, ordered by Priority.
type ExitRule struct {
	RuleType   ExitRuleType
	TriggerPct decimal.Decimal // negative for stop/trail
	ExitPct    decimal.Decimal // (0,100]
	Priority   int
	Enabled    bool
	Params     map[string]decimal.Decimal // e.g. {"activation_pct": ...}
}

// ExitStrategy is a named, versioned bundle of exit rules. Activating a
// version archives the previously-active version of the same name;
// Active versions are immutable (edits fork a new Draft).
type ExitStrategy struct {
	ID                     string
	Name                   string
	Version                int
	Status                 ExitStrategyStatus
	Rules                  []ExitRule // ascending by Priority
	MaxHoldHours           float64
	StagnationHours        float64
	StagnationThresholdPct float64
	MoonbagPct             decimal.Decimal // 0 disables moonbag retention
}

// HasRuleType reports whether an enabled rule of the given type exists.
func (s *ExitStrategy) HasRuleType(t ExitRuleType) bool {
	for _, r := range s.Rules {
		if r.Enabled && r.RuleType == t {
			return true
		}
	}
	return false
}

// RuleOfType returns the first enabled rule of the given type, if any.
func (s *ExitStrategy) RuleOfType(t ExitRuleType) *ExitRule {
	for i := range s.Rules {
		if s.Rules[i].Enabled && s.Rules[i].RuleType == t {
			return &s.Rules[i]
		}
	}
	return nil
}

// MoonbagEnabled reports whether this strategy retains a moonbag after
// all take-profits have fired.
func (s *ExitStrategy) MoonbagEnabled() bool {
	return s.MoonbagPct.IsPositive()
}

// Package sizing implements the position sizer (C9) and the
// concentration checker (C10) it delegates to before finalizing a size.
package sizing

import (
	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/config"
	"github.com/walltrack/walltrack/internal/domain"
)

// SkipReason enumerates why the sizer declined to size a signal.
type SkipReason string

const (
	SkipLowScore     SkipReason = "LowScore"
	SkipMaxPositions SkipReason = "MaxPositions"
	SkipMinSize      SkipReason = "MinSize"
	SkipNoBalance    SkipReason = "NoBalance"
)

// BlockReason enumerates why concentration blocked a signal outright.
type BlockReason string

const (
	BlockDuplicate     BlockReason = "Duplicate"
	BlockConcentration BlockReason = "Concentration"
)

// Outcome is C9's result classification.
type Outcome string

const (
	Approved Outcome = "Approved"
	Reduced  Outcome = "Reduced"
	Skipped  Outcome = "Skipped"
	Blocked  Outcome = "Blocked"
)

// Request bundles the sizer's inputs (§4.9).
type Request struct {
	SignalScore          float64
	Conviction           domain.Conviction
	AvailableBalanceSOL  decimal.Decimal
	CurrentPositionCount int
	CurrentAllocatedSOL  decimal.Decimal
	StopLossPct          *float64
	TokenAddress         string
	ClusterID            string
}

// Result is what Size returns; PreConcentrationSOL is kept for audit
// even when C10 subsequently reduces or blocks the size.
type Result struct {
	Outcome              Outcome
	SkipReason           SkipReason
	BlockReason          BlockReason
	AmountSOL            decimal.Decimal
	PreConcentrationSOL  decimal.Decimal
}

// Sizer is C9.
type Sizer struct {
	cfg           config.SizingConfig
	concentration *ConcentrationChecker
}

// NewSizer builds a Sizer bound to the sizing config and a concentration checker.
func NewSizer(cfg config.SizingConfig, concentration *ConcentrationChecker) *Sizer {
	return &Sizer{cfg: cfg, concentration: concentration}
}

// Size runs the full §4.9 algorithm followed by the §4.10 concentration pass.
func (s *Sizer) Size(req Request, maxConcurrentPositions int) Result {
	if req.SignalScore < s.cfg.MinConvictionThreshold {
		return Result{Outcome: Skipped, SkipReason: SkipLowScore}
	}
	if req.CurrentPositionCount >= maxConcurrentPositions {
		return Result{Outcome: Skipped, SkipReason: SkipMaxPositions}
	}

	multiplier := s.cfg.StandardConvictionMultiplier
	if req.Conviction == domain.ConvictionHigh {
		multiplier = s.cfg.HighConvictionMultiplier
	}

	usable := req.AvailableBalanceSOL.Sub(decimal.NewFromFloat(s.cfg.ReserveSOL))
	allocationCap := decimal.NewFromFloat(s.cfg.MaxCapitalAllocationPct / 100).
		Mul(decimal.NewFromFloat(s.cfg.TotalCapitalSOL)).
		Sub(req.CurrentAllocatedSOL)
	if allocationCap.LessThan(usable) {
		usable = allocationCap
	}
	if usable.IsNegative() {
		return Result{Outcome: Skipped, SkipReason: SkipNoBalance}
	}

	var base decimal.Decimal
	switch s.cfg.SizingMode {
	case config.SizingRiskBased:
		stopLossPct := s.cfg.DefaultStopLossPct
		if req.StopLossPct != nil {
			stopLossPct = *req.StopLossPct
		}
		maxRisk := decimal.NewFromFloat(s.cfg.RiskPerTradePct / 100).Mul(decimal.NewFromFloat(s.cfg.TotalCapitalSOL))
		if stopLossPct <= 0 {
			return Result{Outcome: Skipped, SkipReason: SkipMinSize}
		}
		base = maxRisk.Div(decimal.NewFromFloat(stopLossPct / 100))
	default: // FixedPercent
		base = usable.Mul(decimal.NewFromFloat(s.cfg.BasePositionPct / 100))
	}

	raw := base.Mul(decimal.NewFromFloat(multiplier))
	if raw.GreaterThan(usable) {
		raw = usable
	}

	outcome := Approved
	amount := raw
	minPos := decimal.NewFromFloat(s.cfg.MinPositionSOL)
	maxPos := decimal.NewFromFloat(s.cfg.MaxPositionSOL)
	if amount.GreaterThan(maxPos) {
		amount = maxPos
		outcome = Reduced
	}
	if amount.LessThan(minPos) {
		return Result{Outcome: Skipped, SkipReason: SkipMinSize, PreConcentrationSOL: raw}
	}

	if s.concentration != nil {
		portfolio := req.CurrentAllocatedSOL.Add(req.AvailableBalanceSOL)
		cres := s.concentration.Check(req.TokenAddress, req.ClusterID, amount, portfolio)
		if cres.Outcome == Blocked {
			return Result{Outcome: Blocked, BlockReason: cres.BlockReason, PreConcentrationSOL: raw}
		}
		if cres.WasAdjusted {
			amount = cres.AllowedSOL
			outcome = Reduced
		}
	}

	return Result{Outcome: outcome, AmountSOL: amount, PreConcentrationSOL: raw}
}

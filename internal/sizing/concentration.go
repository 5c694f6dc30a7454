package sizing

import (
	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/config"
)

// OpenPositionView is the subset of open-position state C10 needs to
// compute per-token and per-cluster allocation.
type OpenPositionView struct {
	TokenAddress  string
	ClusterID     string
	EntryAmountSOL decimal.Decimal
}

// OpenPositions abstracts the read-side C10 needs over the position store.
type OpenPositions interface {
	ListOpenViews() []OpenPositionView
}

// ConcentrationResult is C10's decision for a single sizing request.
type ConcentrationResult struct {
	Outcome     Outcome
	BlockReason BlockReason
	AllowedSOL  decimal.Decimal
	WasAdjusted bool
}

// ConcentrationChecker is C10.
type ConcentrationChecker struct {
	cfg       config.ConcentrationConfig
	positions OpenPositions
}

// NewConcentrationChecker builds a ConcentrationChecker over the open
// position view and concentration config.
func NewConcentrationChecker(cfg config.ConcentrationConfig, positions OpenPositions) *ConcentrationChecker {
	return &ConcentrationChecker{cfg: cfg, positions: positions}
}

// Check implements §4.10's four-step algorithm.
func (c *ConcentrationChecker) Check(token, clusterID string, requested, portfolioValue decimal.Decimal) ConcentrationResult {
	if !c.cfg.Enabled {
		return ConcentrationResult{Outcome: Approved, AllowedSOL: requested}
	}

	views := c.positions.ListOpenViews()

	if c.cfg.BlockDuplicatePositions {
		for _, v := range views {
			if v.TokenAddress == token {
				return ConcentrationResult{Outcome: Blocked, BlockReason: BlockDuplicate}
			}
		}
	}

	tokenCurrent := sumAllocation(views, func(v OpenPositionView) bool { return v.TokenAddress == token })
	allowed, blocked := applyLimit(tokenCurrent, requested, portfolioValue, c.cfg.MaxTokenConcentrationPct)
	if blocked {
		return ConcentrationResult{Outcome: Blocked, BlockReason: BlockTokenLimit()}
	}
	wasAdjusted := allowed.LessThan(requested)
	requested = allowed

	if clusterID != "" {
		clusterCount := countCluster(views, clusterID)
		if clusterCount >= c.cfg.MaxPositionsPerCluster {
			return ConcentrationResult{Outcome: Blocked, BlockReason: BlockClusterLimit()}
		}
		clusterCurrent := sumAllocation(views, func(v OpenPositionView) bool { return v.ClusterID == clusterID })
		clusterAllowed, clusterBlocked := applyLimit(clusterCurrent, requested, portfolioValue, c.cfg.MaxClusterConcentrationPct)
		if clusterBlocked {
			return ConcentrationResult{Outcome: Blocked, BlockReason: BlockClusterLimit()}
		}
		if clusterAllowed.LessThan(requested) {
			requested = clusterAllowed
			wasAdjusted = true
		}
	}

	return ConcentrationResult{Outcome: Approved, AllowedSOL: requested, WasAdjusted: wasAdjusted}
}

// BlockTokenLimit and BlockClusterLimit are distinct reasons under the
// umbrella BlockConcentration (§4.10 step 2/3 both report Blocked(Concentration/TokenLimit)).
func BlockTokenLimit() BlockReason   { return "TokenLimit" }
func BlockClusterLimit() BlockReason { return "ClusterLimit" }

func applyLimit(current, requested, portfolio decimal.Decimal, limitPct float64) (allowed decimal.Decimal, blocked bool) {
	if portfolio.IsZero() {
		return requested, false
	}
	limitFraction := decimal.NewFromFloat(limitPct / 100)
	if current.Div(portfolio).GreaterThanOrEqual(limitFraction) {
		return decimal.Zero, true
	}
	maxAllowed := limitFraction.Mul(portfolio).Sub(current)
	if requested.GreaterThan(maxAllowed) {
		return maxAllowed, false
	}
	return requested, false
}

func sumAllocation(views []OpenPositionView, pred func(OpenPositionView) bool) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range views {
		if pred(v) {
			sum = sum.Add(v.EntryAmountSOL)
		}
	}
	return sum
}

func countCluster(views []OpenPositionView, clusterID string) int {
	n := 0
	for _, v := range views {
		if v.ClusterID == clusterID {
			n++
		}
	}
	return n
}

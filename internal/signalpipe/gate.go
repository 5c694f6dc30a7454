package signalpipe

import (
	"github.com/walltrack/walltrack/internal/config"
	"github.com/walltrack/walltrack/internal/domain"
)

// Gate is C5: the threshold decision over an already-scored signal.
type Gate struct {
	cfg config.ScoringConfig

	highConvictionMultiplier     float64
	standardConvictionMultiplier float64
}

// NewGate builds a Gate bound to the scoring config and the position
// multipliers C9 assigns per conviction tier.
func NewGate(cfg config.ScoringConfig, highMultiplier, standardMultiplier float64) *Gate {
	return &Gate{cfg: cfg, highConvictionMultiplier: highMultiplier, standardConvictionMultiplier: standardMultiplier}
}

// Apply decides Eligible/BelowThreshold and, when eligible, the
// conviction tier and position multiplier (§4.5). Honeypot tokens are
// forced BelowThreshold regardless of score.
func (g *Gate) Apply(scored domain.ScoredSignal, token *domain.TokenCharacteristics) domain.ScoredSignal {
	if token.IsHoneypot {
		scored.Eligibility = domain.EligibilityBelowThreshold
		scored.Conviction = domain.ConvictionNone
		scored.PositionMultiplier = 0
		return scored
	}

	if scored.FinalScore < g.cfg.TradeThreshold {
		scored.Eligibility = domain.EligibilityBelowThreshold
		scored.Conviction = domain.ConvictionNone
		scored.PositionMultiplier = 0
		return scored
	}

	scored.Eligibility = domain.EligibilityEligible
	if scored.FinalScore >= g.cfg.HighConvictionThreshold {
		scored.Conviction = domain.ConvictionHigh
		scored.PositionMultiplier = g.highConvictionMultiplier
	} else {
		scored.Conviction = domain.ConvictionStandard
		scored.PositionMultiplier = g.standardConvictionMultiplier
	}
	return scored
}

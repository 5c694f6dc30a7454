package signalpipe

import (
	"github.com/walltrack/walltrack/internal/config"
	"github.com/walltrack/walltrack/internal/domain"
)

// Scorer is C4: the two-factor wallet sub-score plus cluster multiplier
// model adopted in place of the reference's four-factor weighted sum
// (see the Open Questions decision in the design ledger).
type Scorer struct {
	cfg config.ScoringConfig
}

// NewScorer builds a Scorer bound to the current scoring config.
func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes every intermediate term for a wallet/token/cluster
// triple so downstream observability can explain the decision without
// re-scoring (§4.4).
func (s *Scorer) Score(wallet *domain.WalletProfile, token *domain.TokenCharacteristics, cluster domain.ClusterInfo) domain.ScoredSignal {
	winRateTerm := clamp01(wallet.RollingWinRate) * s.cfg.WalletWinRateWeight
	pnlTerm := normalizePnL(wallet.AvgPnLPerTrade, s.cfg.PnLNormalizeMin, s.cfg.PnLNormalizeMax) * s.cfg.WalletPnLWeight
	walletScore := winRateTerm + pnlTerm

	if cluster.IsLeader {
		walletScore *= s.cfg.LeaderBonus
	}

	clusterMultiplier := clusterMultiplierFor(cluster, s.cfg.MinClusterBoost, s.cfg.MaxClusterBoost)

	final := clamp01(walletScore * clusterMultiplier)

	return domain.ScoredSignal{
		WalletScore:       walletScore,
		TokenScore:        tokenContextScore(token),
		ClusterScore:      clusterScore(cluster),
		ContextScore:      0,
		ClusterMultiplier: clusterMultiplier,
		FinalScore:        final,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// normalizePnL maps avgPnL into [0,1] using the configured normalization
// bounds. Missing metrics (zero value) contribute 0 after normalization.
func normalizePnL(avgPnL, min, max float64) float64 {
	if max <= min {
		return 0
	}
	return clamp01((avgPnL - min) / (max - min))
}

// clusterMultiplierFor derives the participation multiplier from cluster
// membership, bounded to [minBoost, maxBoost]. A wallet with no cluster
// gets a neutral multiplier of 1.0.
func clusterMultiplierFor(cluster domain.ClusterInfo, minBoost, maxBoost float64) float64 {
	if cluster.ClusterID == "" {
		return 1.0
	}
	m := cluster.Multiplier
	if m < minBoost {
		m = minBoost
	}
	if m > maxBoost {
		m = maxBoost
	}
	return m
}

// tokenContextScore and clusterScore are observability-only terms kept
// on ScoredSignal so Explain() can report the full picture; they do not
// feed back into FinalScore (§4.4 defines only the wallet/cluster path).
func tokenContextScore(token *domain.TokenCharacteristics) float64 {
	if token.IsHoneypot {
		return 0
	}
	return 1
}

func clusterScore(cluster domain.ClusterInfo) float64 {
	if cluster.ClusterID == "" {
		return 0
	}
	return cluster.Multiplier
}

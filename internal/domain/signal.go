package domain

import "fmt"

// Eligibility is the outcome of the threshold gate (C5).
type Eligibility string

const (
	EligibilityEligible       Eligibility = "Eligible"
	EligibilityBelowThreshold Eligibility = "BelowThreshold"
	EligibilityFiltered       Eligibility = "Filtered"
)

// Conviction is the tier a gated signal is assigned.
type Conviction string

const (
	ConvictionHigh     Conviction = "High"
	ConvictionStandard Conviction = "Standard"
	ConvictionNone     Conviction = "None"
)

// FilterStatus is the outcome of the signal filter (C3).
type FilterStatus string

const (
	FilterPassed       FilterStatus = "Passed"
	FilterNotMonitored FilterStatus = "NotMonitored"
	FilterBlacklisted  FilterStatus = "Blacklisted"
	FilterDust         FilterStatus = "Dust"
	FilterSelfTrade    FilterStatus = "SelfTrade"
	FilterDuplicateTx  FilterStatus = "DuplicateTx"
)

// FilterResult is what C3.Filter returns for a raw swap event.
type FilterResult struct {
	Status FilterStatus
	Reason string
}

// Passed reports whether the event should continue into scoring.
func (f FilterResult) Passed() bool { return f.Status == FilterPassed }

// ScoredSignal is the fully-scored, gated derivation of a SwapEvent.
// Persisted to the append-only signal log. Every intermediate term is
// kept so observability can explain the decision without re-scoring.
type ScoredSignal struct {
	SignalID string
	Event    SwapEvent

	WalletScore  float64
	TokenScore   float64
	ClusterScore float64
	ContextScore float64

	ClusterMultiplier float64
	FinalScore        float64

	Eligibility        Eligibility
	Conviction         Conviction
	PositionMultiplier float64

	ScoringLatencyMS int64

	// ExecutionStatus is the signal-log lifecycle the rest of the
	// pipeline updates as the signal is processed: "", Blocked, Error,
	// Queued, Executed, Failed.
	ExecutionStatus string
	ExecutionReason string
}

// Explain summarizes which sub-scores drove the decision, grounded on
// the original implementation's signal pipeline explain payload. It is
// computed on demand, never stored, so it can never drift from the
// scores it describes.
func (s *ScoredSignal) Explain() string {
	return fmt.Sprintf("wallet=%.3f token=%.3f cluster=%.3f context=%.3f x%.2f => %.3f",
		s.WalletScore, s.TokenScore, s.ClusterScore, s.ContextScore,
		s.ClusterMultiplier, s.FinalScore)
}

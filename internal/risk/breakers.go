package risk

// TradeResult is the minimal view of a closed trade the breakers need,
// ordered newest-first by the caller.
type TradeResult struct {
	IsWin bool
}

// DrawdownBreaker is C7's Drawdown evaluator: trips when observed
// drawdown meets or exceeds the threshold (B2: inclusive).
func DrawdownBreaker(drawdownPct, thresholdPct float64) bool {
	return drawdownPct >= thresholdPct
}

// WinRateBreaker is C7's WinRate evaluator: requires a full window of
// closed trades (newest first) before it can trip.
func WinRateBreaker(trades []TradeResult, windowSize int, thresholdPct float64) bool {
	if len(trades) < windowSize {
		return false
	}
	window := trades[:windowSize]
	wins := 0
	for _, t := range window {
		if t.IsWin {
			wins++
		}
	}
	winRatePct := float64(wins) / float64(windowSize) * 100
	return winRatePct < thresholdPct
}

// ConsecutiveLossBreaker is C7's ConsecutiveLoss evaluator: counts
// sequential losses from the newest trade backward.
func ConsecutiveLossBreaker(trades []TradeResult, threshold int) bool {
	streak := 0
	for _, t := range trades {
		if t.IsWin {
			break
		}
		streak++
	}
	return streak >= threshold
}

package risk

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
)

// Metrics is what the monitor polls each tick to re-evaluate breakers.
type Metrics interface {
	DrawdownPct(ctx context.Context) (float64, error)
	RecentTrades(ctx context.Context, limit int) ([]TradeResult, error)
	CapitalAtRisk(ctx context.Context) (float64, error)
}

// MonitorConfig bundles the breaker thresholds C7 is configured with.
type MonitorConfig struct {
	DrawdownThresholdPct     float64
	WinRateThresholdPct      float64
	WinRateWindowSize        int
	ConsecutiveLossThreshold int
	PollInterval             time.Duration
}

// Monitor ticks the breaker evaluators against live metrics and enacts
// pauses through the state manager. Grounded on the teacher's
// ticker-driven StartMonitoring/Checker.Start shape.
type Monitor struct {
	states  *StateManager
	metrics Metrics
	events  ports.EventLog
	cfg     MonitorConfig

	active map[domain.CircuitBreakerType]bool
}

// NewMonitor builds a Monitor; call Start to begin ticking.
func NewMonitor(states *StateManager, metrics Metrics, events ports.EventLog, cfg MonitorConfig) *Monitor {
	return &Monitor{states: states, metrics: metrics, events: events, cfg: cfg, active: make(map[domain.CircuitBreakerType]bool)}
}

// Start runs the breaker check loop until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	interval := m.cfg.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.check(ctx)
			}
		}
	}()
}

func (m *Monitor) check(ctx context.Context) {
	drawdown, err := m.metrics.DrawdownPct(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("risk monitor: drawdown metric unavailable")
	} else if DrawdownBreaker(drawdown, m.cfg.DrawdownThresholdPct) {
		m.trip(ctx, domain.BreakerDrawdown, m.cfg.DrawdownThresholdPct, drawdown)
	}

	trades, err := m.metrics.RecentTrades(ctx, m.cfg.WinRateWindowSize)
	if err != nil {
		log.Debug().Err(err).Msg("risk monitor: trade history unavailable")
		return
	}
	if WinRateBreaker(trades, m.cfg.WinRateWindowSize, m.cfg.WinRateThresholdPct) {
		m.trip(ctx, domain.BreakerWinRate, m.cfg.WinRateThresholdPct, winRateOf(trades, m.cfg.WinRateWindowSize))
	}
	if ConsecutiveLossBreaker(trades, m.cfg.ConsecutiveLossThreshold) {
		m.trip(ctx, domain.BreakerConsecutiveLoss, float64(m.cfg.ConsecutiveLossThreshold), float64(consecutiveLosses(trades)))
	}
}

// trip enacts a pause and records the trigger, skipping if the same
// breaker is already active (C7's non-re-trigger requirement).
func (m *Monitor) trip(ctx context.Context, breaker domain.CircuitBreakerType, threshold, actual float64) {
	if m.active[breaker] {
		return
	}
	if err := m.states.SetCircuitBreakerPause(ctx, breaker); err != nil {
		log.Error().Err(err).Str("breaker", string(breaker)).Msg("failed to enact circuit breaker pause")
		return
	}
	m.active[breaker] = true

	capital, _ := m.metrics.CapitalAtRisk(ctx)
	if m.events != nil {
		if err := m.events.AppendCircuitBreakerTrigger(ctx, domain.CircuitBreakerTrigger{
			ID: domain.NewID(), BreakerType: breaker, ThresholdValue: threshold,
			ActualValue: actual, CapitalAtTrigger: capital, CreatedAt: time.Now().UTC(),
		}); err != nil {
			log.Error().Err(err).Msg("failed to append circuit breaker trigger")
		}
	}
}

// ClearActive is called on a successful acknowledged resume, so the
// breaker can trip again in a future cycle.
func (m *Monitor) ClearActive() {
	for k := range m.active {
		delete(m.active, k)
	}
}

func winRateOf(trades []TradeResult, windowSize int) float64 {
	if windowSize > len(trades) {
		windowSize = len(trades)
	}
	wins := 0
	for _, t := range trades[:windowSize] {
		if t.IsWin {
			wins++
		}
	}
	if windowSize == 0 {
		return 0
	}
	return float64(wins) / float64(windowSize) * 100
}

func consecutiveLosses(trades []TradeResult) int {
	streak := 0
	for _, t := range trades {
		if t.IsWin {
			break
		}
		streak++
	}
	return streak
}

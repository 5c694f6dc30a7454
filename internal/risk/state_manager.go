// Package risk implements the system state manager (C6) and the pure
// circuit-breaker evaluators (C7) that drive it. The singleton
// SystemState row is the one piece of process-wide state the design
// notes permit; everything else is explicit wiring.
package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
)

// StateManager is C6: a singleton state machine guarding trade entry.
type StateManager struct {
	store    ports.SystemStateStore
	events   ports.EventLog
	mu       sync.Mutex
	cached   *domain.SystemState
}

// NewStateManager loads (or initializes) the singleton state row.
func NewStateManager(ctx context.Context, store ports.SystemStateStore, events ports.EventLog) (*StateManager, error) {
	state, err := store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &domain.SystemState{Status: domain.StatusRunning}
		if _, err := store.CompareAndSwap(ctx, state, 0); err != nil {
			return nil, err
		}
	}
	return &StateManager{store: store, events: events, cached: state}, nil
}

// GetState returns the current state.
func (m *StateManager) GetState() domain.SystemState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.cached
}

// CanTrade reports whether new entries are allowed.
func (m *StateManager) CanTrade() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cached.CanTrade()
}

// CanExit always returns true (I5): exits are never blocked by a pause.
func (m *StateManager) CanExit() bool { return true }

// Pause moves Running -> PausedManual. Idempotent: pausing an
// already-paused system leaves paused_by/paused_at unchanged (I10).
func (m *StateManager) Pause(ctx context.Context, operator, reason string) error {
	return m.transition(ctx, func(s *domain.SystemState) (domain.SystemStatus, bool) {
		if s.Status != domain.StatusRunning {
			return s.Status, false // idempotent no-op
		}
		return domain.StatusPausedManual, true
	}, operator, reason)
}

// SetCircuitBreakerPause enacts a breaker pause; idempotent against a
// breaker of the same type already active.
func (m *StateManager) SetCircuitBreakerPause(ctx context.Context, breaker domain.CircuitBreakerType) error {
	to := breakerPauseStatus(breaker)
	return m.transition(ctx, func(s *domain.SystemState) (domain.SystemStatus, bool) {
		if s.Status != domain.StatusRunning {
			return s.Status, false
		}
		return to, true
	}, "system", fmt.Sprintf("circuit breaker: %s", breaker))
}

// Resume moves any Paused* status back to Running. Resuming a breaker
// pause requires acknowledge=true; resuming an already-running system
// is an idempotent no-op.
func (m *StateManager) Resume(ctx context.Context, operator string, acknowledge bool) error {
	return m.transition(ctx, func(s *domain.SystemState) (domain.SystemStatus, bool) {
		if s.Status == domain.StatusRunning {
			return s.Status, false
		}
		if s.Status != domain.StatusPausedManual && !acknowledge {
			return s.Status, false
		}
		return domain.StatusRunning, true
	}, operator, "resume")
}

func breakerPauseStatus(breaker domain.CircuitBreakerType) domain.SystemStatus {
	switch breaker {
	case domain.BreakerDrawdown:
		return domain.StatusPausedDrawdown
	case domain.BreakerWinRate:
		return domain.StatusPausedWinRate
	case domain.BreakerConsecutiveLoss:
		return domain.StatusPausedConsecutiveLoss
	default:
		return domain.StatusPausedManual
	}
}

// transition applies decide() under the lock, persists via CAS, and
// appends a typed event on every actual change (not on idempotent no-ops).
func (m *StateManager) transition(ctx context.Context, decide func(*domain.SystemState) (domain.SystemStatus, bool), operator, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	to, changed := decide(m.cached)
	if !changed {
		return nil
	}

	now := time.Now().UTC()
	next := *m.cached
	from := next.Status
	next.Status = to
	if isPaused(to) {
		next.PausedAt = now
		next.PausedBy = operator
		next.PauseReason = reason
	} else {
		next.ResumedAt = now
		next.ResumedBy = operator
	}

	expected := m.cached.Version
	next.Version = expected + 1
	ok, err := m.store.CompareAndSwap(ctx, &next, expected)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("risk: system state changed concurrently, retry")
	}
	m.cached = &next

	if m.events != nil {
		if err := m.events.AppendSystemStateEvent(ctx, domain.SystemStateEvent{
			ID: domain.NewID(), FromStatus: from, ToStatus: to, Operator: operator, Reason: reason, At: now,
		}); err != nil {
			log.Error().Err(err).Msg("failed to append system state event")
		}
	}
	return nil
}

func isPaused(s domain.SystemStatus) bool {
	return s != domain.StatusRunning
}

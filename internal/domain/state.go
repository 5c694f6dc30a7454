package domain

import "time"

// SystemStatus is the single global run/pause state (C6).
type SystemStatus string

const (
	StatusRunning                SystemStatus = "Running"
	StatusPausedManual           SystemStatus = "PausedManual"
	StatusPausedDrawdown         SystemStatus = "PausedDrawdown"
	StatusPausedWinRate          SystemStatus = "PausedWinRate"
	StatusPausedConsecutiveLoss  SystemStatus = "PausedConsecutiveLoss"
)

// CircuitBreakerType identifies which aggregate metric caused a pause.
type CircuitBreakerType string

const (
	BreakerDrawdown        CircuitBreakerType = "Drawdown"
	BreakerWinRate         CircuitBreakerType = "WinRate"
	BreakerConsecutiveLoss CircuitBreakerType = "ConsecutiveLoss"
)

// SystemState is the singleton row C6 owns.
type SystemState struct {
	Status     SystemStatus
	PausedAt   time.Time
	PausedBy   string
	PauseReason string
	ResumedAt  time.Time
	ResumedBy  string

	// Version supports the read-modify-write CAS described in spec.md §5.
	Version int64
}

// CanTrade is true only while Running.
func (s SystemState) CanTrade() bool { return s.Status == StatusRunning }

// CanExit is always true: exits are never blocked by a pause.
func (s SystemState) CanExit() bool { return true }

// CircuitBreakerTrigger is an append-only record of a breaker firing.
type CircuitBreakerTrigger struct {
	ID              string
	BreakerType     CircuitBreakerType
	ThresholdValue  float64
	ActualValue     float64
	CapitalAtTrigger float64
	CreatedAt       time.Time
}

// SystemStateEvent is the typed event record appended on every transition.
type SystemStateEvent struct {
	ID        string
	FromStatus SystemStatus
	ToStatus   SystemStatus
	Operator   string
	Reason     string
	At         time.Time
}

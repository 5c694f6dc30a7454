package storage

import (
	"context"
	"time"

	"github.com/walltrack/walltrack/internal/domain"
)

// EventLog is the SQLite-backed ports.EventLog: six independent
// append-only tables sharing one connection.
type EventLog struct {
	db *DB
}

// NewEventLog builds an EventLog over db.
func NewEventLog(db *DB) *EventLog {
	return &EventLog{db: db}
}

func (e *EventLog) AppendCircuitBreakerTrigger(ctx context.Context, t domain.CircuitBreakerTrigger) error {
	_, err := e.db.sql.ExecContext(ctx, `
		INSERT INTO circuit_breaker_triggers (id, breaker_type, threshold_value, actual_value, capital_at_trigger, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.BreakerType, t.ThresholdValue, t.ActualValue, t.CapitalAtTrigger, t.CreatedAt.Unix())
	return err
}

func (e *EventLog) AppendSystemStateEvent(ctx context.Context, ev domain.SystemStateEvent) error {
	_, err := e.db.sql.ExecContext(ctx, `
		INSERT INTO system_state_events (id, from_status, to_status, operator, reason, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.FromStatus, ev.ToStatus, ev.Operator, ev.Reason, ev.At.Unix())
	return err
}

func (e *EventLog) AppendPositionSlotEvent(ctx context.Context, ev domain.PositionSlotEvent) error {
	_, err := e.db.sql.ExecContext(ctx, `
		INSERT INTO position_slot_events (id, kind, signal_id, at) VALUES (?, ?, ?, ?)`,
		ev.ID, ev.Kind, ev.SignalID, ev.At.Unix())
	return err
}

func (e *EventLog) AppendScoreUpdate(ctx context.Context, u domain.ScoreUpdate) error {
	_, err := e.db.sql.ExecContext(ctx, `
		INSERT INTO score_updates (id, wallet_address, old_score, new_score, reason, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.WalletAddress, u.OldScore, u.NewScore, u.Reason, u.At.Unix())
	return err
}

func (e *EventLog) AppendTradeOutcome(ctx context.Context, o domain.TradeOutcome) error {
	_, err := e.db.sql.ExecContext(ctx, `
		INSERT INTO trade_outcomes (id, wallet_address, position_id, token_address, pnl_sol, is_win, hold_duration_seconds, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.WalletAddress, o.PositionID, o.TokenAddress, o.PnLSOL, boolToInt(o.IsWin), o.HoldDuration.Seconds(), o.ClosedAt.Unix())
	return err
}

// RecentTradeOutcomes returns the limit most-recently-closed trades,
// newest first. Not part of ports.EventLog: it exists only for the
// composition root's risk.Metrics adapter, which needs read access this
// append-only port doesn't otherwise expose.
func (e *EventLog) RecentTradeOutcomes(ctx context.Context, limit int) ([]domain.TradeOutcome, error) {
	rows, err := e.db.sql.QueryContext(ctx, `
		SELECT id, wallet_address, position_id, token_address, pnl_sol, is_win, hold_duration_seconds, closed_at
		FROM trade_outcomes ORDER BY closed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TradeOutcome
	for rows.Next() {
		var o domain.TradeOutcome
		var isWin int
		var holdSeconds float64
		var closedAt int64
		if err := rows.Scan(&o.ID, &o.WalletAddress, &o.PositionID, &o.TokenAddress, &o.PnLSOL, &isWin, &holdSeconds, &closedAt); err != nil {
			return nil, err
		}
		o.IsWin = isWin != 0
		o.HoldDuration = time.Duration(holdSeconds) * time.Second
		o.ClosedAt = time.Unix(closedAt, 0).UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

func (e *EventLog) AppendDecayEvent(ctx context.Context, ev domain.DecayEvent) error {
	_, err := e.db.sql.ExecContext(ctx, `
		INSERT INTO decay_events (id, wallet_address, old_status, new_status, old_score, new_score, rolling_win_rate, consecutive_loss, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.WalletAddress, ev.OldStatus, ev.NewStatus, ev.OldScore, ev.NewScore, ev.RollingWinRate, ev.ConsecutiveLoss, ev.At.Unix())
	return err
}

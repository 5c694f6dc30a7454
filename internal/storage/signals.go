package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/walltrack/walltrack/internal/domain"
)

// SignalLog is the SQLite-backed ports.SignalLog.
type SignalLog struct {
	db *DB
}

// NewSignalLog builds a SignalLog over db.
func NewSignalLog(db *DB) *SignalLog {
	return &SignalLog{db: db}
}

func (s *SignalLog) Append(ctx context.Context, sig *domain.ScoredSignal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	_, err = s.db.sql.ExecContext(ctx, `
		INSERT INTO signal_log (signal_id, payload_json, tx_signature, execution_status, execution_reason, created_at)
		VALUES (?, ?, ?, ?, ?, strftime('%s','now'))`,
		sig.SignalID, string(payload), sig.Event.TxSignature, sig.ExecutionStatus, sig.ExecutionReason)
	return err
}

func (s *SignalLog) UpdateExecutionStatus(ctx context.Context, signalID, status, reason string) error {
	_, err := s.db.sql.ExecContext(ctx, `
		UPDATE signal_log SET execution_status = ?, execution_reason = ? WHERE signal_id = ?`,
		status, reason, signalID)
	return err
}

func (s *SignalLog) GetByTxSignature(ctx context.Context, txSignature string) (*domain.ScoredSignal, error) {
	row := s.db.sql.QueryRowContext(ctx, `
		SELECT payload_json, execution_status, execution_reason FROM signal_log
		WHERE tx_signature = ? ORDER BY created_at DESC LIMIT 1`, txSignature)

	var payload, execStatus, execReason string
	if err := row.Scan(&payload, &execStatus, &execReason); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	var sig domain.ScoredSignal
	if err := json.Unmarshal([]byte(payload), &sig); err != nil {
		return nil, err
	}
	sig.ExecutionStatus = execStatus
	sig.ExecutionReason = execReason
	return &sig, nil
}

package storage

import (
	"context"
	"database/sql"

	"github.com/walltrack/walltrack/internal/domain"
)

// SystemStateStore is the SQLite-backed ports.SystemStateStore: a
// singleton row with optimistic concurrency on Version.
type SystemStateStore struct {
	db *DB
}

// NewSystemStateStore builds a SystemStateStore over db, seeding the
// singleton row (Running, Version 1) if it does not already exist.
func NewSystemStateStore(ctx context.Context, db *DB) (*SystemStateStore, error) {
	_, err := db.sql.ExecContext(ctx, `
		INSERT INTO system_state (id, status, version) VALUES (1, ?, 1)
		ON CONFLICT(id) DO NOTHING`, domain.StatusRunning)
	if err != nil {
		return nil, err
	}
	return &SystemStateStore{db: db}, nil
}

func (s *SystemStateStore) Get(ctx context.Context) (*domain.SystemState, error) {
	row := s.db.sql.QueryRowContext(ctx, `
		SELECT status, paused_at, paused_by, pause_reason, resumed_at, resumed_by, version
		FROM system_state WHERE id = 1`)

	var st domain.SystemState
	var pausedAt, resumedAt sql.NullInt64
	err := row.Scan(&st.Status, &pausedAt, &st.PausedBy, &st.PauseReason, &resumedAt, &st.ResumedBy, &st.Version)
	if err != nil {
		return nil, err
	}
	st.PausedAt = timeFromUnix(pausedAt)
	st.ResumedAt = timeFromUnix(resumedAt)
	return &st, nil
}

// CompareAndSwap implements spec.md §5's CAS write: next is persisted
// only if the stored row's version still matches expectedVersion, and
// the new row's version is bumped to expectedVersion+1.
func (s *SystemStateStore) CompareAndSwap(ctx context.Context, next *domain.SystemState, expectedVersion int64) (bool, error) {
	newVersion := expectedVersion + 1
	res, err := s.db.sql.ExecContext(ctx, `
		UPDATE system_state SET status = ?, paused_at = ?, paused_by = ?, pause_reason = ?,
			resumed_at = ?, resumed_by = ?, version = ?
		WHERE id = 1 AND version = ?`,
		next.Status, unixOrZero(next.PausedAt), next.PausedBy, next.PauseReason,
		unixOrZero(next.ResumedAt), next.ResumedBy, newVersion, expectedVersion)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	next.Version = newVersion
	return true, nil
}

package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/walltrack/walltrack/internal/domain"
)

// QueueStore is the SQLite-backed ports.QueueStore: a durable mirror of
// the in-memory admission FIFO. Nothing reads it back at startup, so a
// restart does not restore queued signals.
type QueueStore struct {
	db *DB
}

// NewQueueStore builds a QueueStore over db.
func NewQueueStore(db *DB) *QueueStore {
	return &QueueStore{db: db}
}

func (s *QueueStore) Enqueue(ctx context.Context, q domain.QueuedSignal) error {
	payload, err := json.Marshal(q.SignalPayload)
	if err != nil {
		return err
	}
	_, err = s.db.sql.ExecContext(ctx, `
		INSERT INTO signal_queue (id, signal_id, payload_json, enqueued_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		q.ID, q.SignalID, string(payload), q.EnqueuedAt.Unix(), q.ExpiresAt.Unix())
	return err
}

func (s *QueueStore) Dequeue(ctx context.Context, id string) error {
	_, err := s.db.sql.ExecContext(ctx, `DELETE FROM signal_queue WHERE id = ?`, id)
	return err
}

func (s *QueueStore) List(ctx context.Context) ([]domain.QueuedSignal, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, signal_id, payload_json, enqueued_at, expires_at FROM signal_queue ORDER BY enqueued_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.QueuedSignal
	for rows.Next() {
		var q domain.QueuedSignal
		var payload string
		var enqueuedAt, expiresAt int64
		if err := rows.Scan(&q.ID, &q.SignalID, &payload, &enqueuedAt, &expiresAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &q.SignalPayload); err != nil {
			return nil, err
		}
		q.EnqueuedAt = time.Unix(enqueuedAt, 0).UTC()
		q.ExpiresAt = time.Unix(expiresAt, 0).UTC()
		out = append(out, q)
	}
	return out, rows.Err()
}

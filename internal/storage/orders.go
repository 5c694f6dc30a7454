package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
)

// OrderStore is the SQLite-backed ports.OrderStore.
type OrderStore struct {
	db *DB
}

// NewOrderStore builds an OrderStore over db.
func NewOrderStore(db *DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) Create(ctx context.Context, o *domain.Order) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO orders (id, kind, side, signal_id, position_id, token_address, amount_sol, amount_tokens,
		                     expected_price, actual_price, max_slippage_bps, tx_signature, status, attempt_count,
		                     max_attempts, next_retry_at, last_error, lease_owner, lease_until, is_simulated,
		                     created_at, updated_at, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Kind, o.Side, o.SignalID, o.PositionID, o.TokenAddress, o.AmountSOL.String(), o.AmountTokens.String(),
		o.ExpectedPrice.String(), o.ActualPrice.String(), o.MaxSlippageBps, o.TxSignature, o.Status, o.AttemptCount,
		o.MaxAttempts, unixOrZero(o.NextRetryAt), o.LastError, o.LeaseOwner, unixOrZero(o.LeaseUntil), boolToInt(o.IsSimulated),
		o.CreatedAt.Unix(), o.UpdatedAt.Unix(), unixOrZero(o.FilledAt))
	return err
}

// Update applies o's full row back, conditioned on the stored row still
// being at fromStatus (I1's single-writer guard against lost updates).
func (s *OrderStore) Update(ctx context.Context, o *domain.Order, fromStatus domain.OrderStatus) error {
	res, err := s.db.sql.ExecContext(ctx, `
		UPDATE orders SET kind=?, side=?, signal_id=?, position_id=?, token_address=?, amount_sol=?, amount_tokens=?,
			expected_price=?, actual_price=?, max_slippage_bps=?, tx_signature=?, status=?, attempt_count=?,
			max_attempts=?, next_retry_at=?, last_error=?, lease_owner=?, lease_until=?, is_simulated=?,
			updated_at=?, filled_at=?
		WHERE id = ? AND status = ?`,
		o.Kind, o.Side, o.SignalID, o.PositionID, o.TokenAddress, o.AmountSOL.String(), o.AmountTokens.String(),
		o.ExpectedPrice.String(), o.ActualPrice.String(), o.MaxSlippageBps, o.TxSignature, o.Status, o.AttemptCount,
		o.MaxAttempts, unixOrZero(o.NextRetryAt), o.LastError, o.LeaseOwner, unixOrZero(o.LeaseUntil), boolToInt(o.IsSimulated),
		o.UpdatedAt.Unix(), unixOrZero(o.FilledAt), o.ID, fromStatus)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

func (s *OrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.sql.QueryRowContext(ctx, orderSelectColumns+` WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

// GetPendingRetries returns Failed orders eligible for retry and any
// Pending order awaiting its first attempt, oldest NextRetryAt first.
func (s *OrderStore) GetPendingRetries(ctx context.Context, limit int) ([]*domain.Order, error) {
	rows, err := s.db.sql.QueryContext(ctx, orderSelectColumns+`
		WHERE status IN ('Pending', 'Failed') ORDER BY next_retry_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *OrderStore) AcquireLease(ctx context.Context, orderID, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC().Unix()
	until := time.Now().UTC().Add(ttl).Unix()
	res, err := s.db.sql.ExecContext(ctx, `
		UPDATE orders SET lease_owner = ?, lease_until = ?
		WHERE id = ? AND (lease_owner = '' OR lease_until IS NULL OR lease_until < ?)`,
		owner, until, orderID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *OrderStore) ReleaseLease(ctx context.Context, orderID string) error {
	_, err := s.db.sql.ExecContext(ctx, `UPDATE orders SET lease_owner = '', lease_until = NULL WHERE id = ?`, orderID)
	return err
}

func (s *OrderStore) GetHistory(ctx context.Context, filters ports.OrderFilters) ([]*domain.Order, error) {
	query := orderSelectColumns + ` WHERE 1=1`
	var args []any
	if filters.Status != "" {
		query += ` AND status = ?`
		args = append(args, filters.Status)
	}
	if filters.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, filters.Kind)
	}
	if filters.Token != "" {
		query += ` AND token_address = ?`
		args = append(args, filters.Token)
	}
	if !filters.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filters.Since.Unix())
	}
	query += ` ORDER BY created_at DESC`
	if filters.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filters.Limit)
		if filters.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filters.Offset)
		}
	}

	rows, err := s.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *OrderStore) GetTimeline(ctx context.Context, orderID string) ([]domain.OrderStatusLogEntry, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT order_id, changed_at, old_status, new_status, detail
		FROM order_status_log WHERE order_id = ? ORDER BY changed_at ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderStatusLogEntry
	for rows.Next() {
		var e domain.OrderStatusLogEntry
		var changedAt int64
		if err := rows.Scan(&e.OrderID, &changedAt, &e.OldStatus, &e.NewStatus, &e.Detail); err != nil {
			return nil, err
		}
		e.ChangedAt = time.Unix(changedAt, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *OrderStore) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int, error) {
	rows, err := s.db.sql.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[domain.OrderStatus]int{}
	for rows.Next() {
		var status domain.OrderStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[status] = count
	}
	return out, rows.Err()
}

func (s *OrderStore) AppendStatusLog(ctx context.Context, entry domain.OrderStatusLogEntry) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO order_status_log (order_id, changed_at, old_status, new_status, detail)
		VALUES (?, ?, ?, ?, ?)`,
		entry.OrderID, entry.ChangedAt.Unix(), entry.OldStatus, entry.NewStatus, entry.Detail)
	return err
}

const orderSelectColumns = `
	SELECT id, kind, side, signal_id, position_id, token_address, amount_sol, amount_tokens,
	       expected_price, actual_price, max_slippage_bps, tx_signature, status, attempt_count,
	       max_attempts, next_retry_at, last_error, lease_owner, lease_until, is_simulated,
	       created_at, updated_at, filled_at
	FROM orders`

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var amountSOL, amountTokens, expectedPrice, actualPrice string
	var nextRetryAt, leaseUntil, filledAt sql.NullInt64
	var createdAt, updatedAt int64
	var isSimulated int
	err := row.Scan(&o.ID, &o.Kind, &o.Side, &o.SignalID, &o.PositionID, &o.TokenAddress, &amountSOL, &amountTokens,
		&expectedPrice, &actualPrice, &o.MaxSlippageBps, &o.TxSignature, &o.Status, &o.AttemptCount,
		&o.MaxAttempts, &nextRetryAt, &o.LastError, &o.LeaseOwner, &leaseUntil, &isSimulated,
		&createdAt, &updatedAt, &filledAt)
	if err != nil {
		return nil, err
	}
	o.AmountSOL, _ = decimal.NewFromString(amountSOL)
	o.AmountTokens, _ = decimal.NewFromString(amountTokens)
	o.ExpectedPrice, _ = decimal.NewFromString(expectedPrice)
	o.ActualPrice, _ = decimal.NewFromString(actualPrice)
	o.NextRetryAt = timeFromUnix(nextRetryAt)
	o.LeaseUntil = timeFromUnix(leaseUntil)
	o.IsSimulated = isSimulated != 0
	o.CreatedAt = time.Unix(createdAt, 0).UTC()
	o.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	o.FilledAt = timeFromUnix(filledAt)
	return &o, nil
}

func scanOrders(rows *sql.Rows) ([]*domain.Order, error) {
	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package storage

import (
	"context"
	"database/sql"

	"github.com/walltrack/walltrack/internal/domain"
)

// WalletStore is the SQLite-backed ports.WalletStore.
type WalletStore struct {
	db *DB
}

// NewWalletStore builds a WalletStore over db.
func NewWalletStore(db *DB) *WalletStore {
	return &WalletStore{db: db}
}

func (s *WalletStore) GetByAddress(ctx context.Context, address string) (*domain.WalletProfile, error) {
	row := s.db.sql.QueryRowContext(ctx, `
		SELECT address, status, score, win_rate, total_pnl, total_trades, avg_pnl_per_trade,
		       rolling_win_rate, rolling_wins, rolling_losses, rolling_window_size,
		       decay_status, last_activity_at, position_size_style, hold_duration_style, behavioral_confidence
		FROM wallets WHERE address = ?`, address)
	p, err := scanWallet(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *WalletStore) Upsert(ctx context.Context, profile *domain.WalletProfile) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO wallets (address, status, score, win_rate, total_pnl, total_trades, avg_pnl_per_trade,
		                      rolling_win_rate, rolling_wins, rolling_losses, rolling_window_size,
		                      decay_status, last_activity_at, position_size_style, hold_duration_style, behavioral_confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			status=excluded.status, score=excluded.score, win_rate=excluded.win_rate,
			total_pnl=excluded.total_pnl, total_trades=excluded.total_trades,
			avg_pnl_per_trade=excluded.avg_pnl_per_trade, rolling_win_rate=excluded.rolling_win_rate,
			rolling_wins=excluded.rolling_wins, rolling_losses=excluded.rolling_losses,
			rolling_window_size=excluded.rolling_window_size, decay_status=excluded.decay_status,
			last_activity_at=excluded.last_activity_at, position_size_style=excluded.position_size_style,
			hold_duration_style=excluded.hold_duration_style, behavioral_confidence=excluded.behavioral_confidence`,
		profile.Address, profile.Status, profile.Score, profile.WinRate, profile.TotalPnL, profile.TotalTrades,
		profile.AvgPnLPerTrade, profile.RollingWinRate, profile.RollingWins, profile.RollingLosses,
		profile.RollingWindowSize, profile.DecayStatus, unixOrZero(profile.LastActivityAt),
		profile.PositionSizeStyle, profile.HoldDurationStyle, profile.BehavioralConfidence)
	return err
}

func (s *WalletStore) UpdateStatus(ctx context.Context, address string, status domain.WalletStatus) error {
	_, err := s.db.sql.ExecContext(ctx, `UPDATE wallets SET status = ? WHERE address = ?`, status, address)
	return err
}

func (s *WalletStore) UpdateDecay(ctx context.Context, address string, decay domain.DecayStatus, newScore float64) error {
	_, err := s.db.sql.ExecContext(ctx, `UPDATE wallets SET decay_status = ?, score = ? WHERE address = ?`, decay, newScore, address)
	return err
}

func (s *WalletStore) ListByStatus(ctx context.Context, status domain.WalletStatus) ([]*domain.WalletProfile, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT address, status, score, win_rate, total_pnl, total_trades, avg_pnl_per_trade,
		       rolling_win_rate, rolling_wins, rolling_losses, rolling_window_size,
		       decay_status, last_activity_at, position_size_style, hold_duration_style, behavioral_confidence
		FROM wallets WHERE status = ?`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.WalletProfile
	for rows.Next() {
		p, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (*domain.WalletProfile, error) {
	var p domain.WalletProfile
	var lastActivity sql.NullInt64
	err := row.Scan(&p.Address, &p.Status, &p.Score, &p.WinRate, &p.TotalPnL, &p.TotalTrades, &p.AvgPnLPerTrade,
		&p.RollingWinRate, &p.RollingWins, &p.RollingLosses, &p.RollingWindowSize,
		&p.DecayStatus, &lastActivity, &p.PositionSizeStyle, &p.HoldDurationStyle, &p.BehavioralConfidence)
	if err != nil {
		return nil, err
	}
	p.LastActivityAt = timeFromUnix(lastActivity)
	return &p, nil
}

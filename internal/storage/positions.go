package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/domain"
)

// PositionStore is the SQLite-backed ports.PositionStore.
type PositionStore struct {
	db *DB
}

// NewPositionStore builds a PositionStore over db.
func NewPositionStore(db *DB) *PositionStore {
	return &PositionStore{db: db}
}

// levelsJSON / txSigsJSON exist because PositionLevels and the exit-tx
// signature list are the only fields with no natural flat column; every
// other field gets its own column so queries can filter on it directly.
type levelsJSON struct {
	EntryPrice               decimal.Decimal          `json:"entry_price"`
	StopLossPrice            decimal.Decimal          `json:"stop_loss_price"`
	MoonbagStopPrice         *decimal.Decimal         `json:"moonbag_stop_price,omitempty"`
	TrailingStopCurrentPrice *decimal.Decimal         `json:"trailing_stop_current_price,omitempty"`
	TakeProfitLevels         []domain.CalculatedLevel `json:"take_profit_levels"`
}

func (s *PositionStore) Create(ctx context.Context, p *domain.Position) error {
	return s.upsert(ctx, p, true)
}

func (s *PositionStore) Update(ctx context.Context, p *domain.Position) error {
	return s.upsert(ctx, p, false)
}

func (s *PositionStore) upsert(ctx context.Context, p *domain.Position, insert bool) error {
	levels := levelsJSON{
		EntryPrice: p.Levels.EntryPrice, StopLossPrice: p.Levels.StopLossPrice,
		MoonbagStopPrice: p.Levels.MoonbagStopPrice, TrailingStopCurrentPrice: p.Levels.TrailingStopCurrentPrice,
		TakeProfitLevels: p.Levels.TakeProfitLevels,
	}
	levelsBytes, err := json.Marshal(levels)
	if err != nil {
		return err
	}
	sigsBytes, err := json.Marshal(p.ExitTxSignatures)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO positions (id, signal_id, token_address, wallet_address, status, entry_price, entry_amount_sol,
			entry_amount_tokens, current_amount_tokens, peak_price, last_price_check, conviction_tier, exit_strategy_id,
			levels_json, exit_tx_signatures_json, realized_pnl_sol, unrealized_pnl_sol, exit_time, exit_reason, exit_price,
			is_moonbag, is_simulated, cluster_id, stagnation_window_start, stagnation_window_set_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if !insert {
		query = `
		INSERT INTO positions (id, signal_id, token_address, wallet_address, status, entry_price, entry_amount_sol,
			entry_amount_tokens, current_amount_tokens, peak_price, last_price_check, conviction_tier, exit_strategy_id,
			levels_json, exit_tx_signatures_json, realized_pnl_sol, unrealized_pnl_sol, exit_time, exit_reason, exit_price,
			is_moonbag, is_simulated, cluster_id, stagnation_window_start, stagnation_window_set_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			signal_id=excluded.signal_id, token_address=excluded.token_address, wallet_address=excluded.wallet_address,
			status=excluded.status, entry_price=excluded.entry_price, entry_amount_sol=excluded.entry_amount_sol,
			entry_amount_tokens=excluded.entry_amount_tokens, current_amount_tokens=excluded.current_amount_tokens,
			peak_price=excluded.peak_price, last_price_check=excluded.last_price_check,
			conviction_tier=excluded.conviction_tier, exit_strategy_id=excluded.exit_strategy_id,
			levels_json=excluded.levels_json, exit_tx_signatures_json=excluded.exit_tx_signatures_json,
			realized_pnl_sol=excluded.realized_pnl_sol, unrealized_pnl_sol=excluded.unrealized_pnl_sol,
			exit_time=excluded.exit_time, exit_reason=excluded.exit_reason, exit_price=excluded.exit_price,
			is_moonbag=excluded.is_moonbag, is_simulated=excluded.is_simulated, cluster_id=excluded.cluster_id,
			stagnation_window_start=excluded.stagnation_window_start, stagnation_window_set_at=excluded.stagnation_window_set_at`
	}

	_, err = s.db.sql.ExecContext(ctx, query,
		p.ID, p.SignalID, p.TokenAddress, p.WalletAddress, p.Status, p.EntryPrice.String(), p.EntryAmountSOL.String(),
		p.EntryAmountTokens.String(), p.CurrentAmountTokens.String(), decimalPtrString(p.PeakPrice),
		timePtrUnix(p.LastPriceCheck), p.ConvictionTier, p.ExitStrategyID, string(levelsBytes), string(sigsBytes),
		p.RealizedPnLSOL.String(), p.UnrealizedPnLSOL.String(), timePtrUnix(p.ExitTime), p.ExitReason,
		decimalPtrString(p.ExitPrice), boolToInt(p.IsMoonbag), boolToInt(p.IsSimulated), p.ClusterID,
		p.StagnationWindowStart.String(), unixOrZero(p.StagnationWindowSetAt), p.CreatedAt.Unix())
	return err
}

func (s *PositionStore) Get(ctx context.Context, id string) (*domain.Position, error) {
	row := s.db.sql.QueryRowContext(ctx, positionSelectColumns+` WHERE id = ?`, id)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *PositionStore) ListOpen(ctx context.Context) ([]*domain.Position, error) {
	rows, err := s.db.sql.QueryContext(ctx, positionSelectColumns+
		` WHERE status IN ('Open', 'PartialExit', 'Moonbag')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PositionStore) SaveExitExecution(ctx context.Context, e domain.ExitExecution) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO exit_executions (position_id, reason, trigger_level, tokens_sold, sol_received, pnl_sol, tx_signature, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.PositionID, e.Reason, e.TriggerLevel, e.TokensSold.String(), e.SOLReceived.String(), e.PnLSOL.String(),
		e.TxSignature, e.ExecutedAt.Unix())
	return err
}

func (s *PositionStore) AppendTxSignature(ctx context.Context, positionID, txSig string) error {
	p, err := s.Get(ctx, positionID)
	if err != nil {
		return err
	}
	if p == nil {
		return sql.ErrNoRows
	}
	p.ExitTxSignatures = append(p.ExitTxSignatures, txSig)
	return s.Update(ctx, p)
}

const positionSelectColumns = `
	SELECT id, signal_id, token_address, wallet_address, status, entry_price, entry_amount_sol,
	       entry_amount_tokens, current_amount_tokens, peak_price, last_price_check, conviction_tier, exit_strategy_id,
	       levels_json, exit_tx_signatures_json, realized_pnl_sol, unrealized_pnl_sol, exit_time, exit_reason, exit_price,
	       is_moonbag, is_simulated, cluster_id, stagnation_window_start, stagnation_window_set_at, created_at
	FROM positions`

func scanPosition(row rowScanner) (*domain.Position, error) {
	var p domain.Position
	var entryPrice, entryAmountSOL, entryAmountTokens, currentAmountTokens, realizedPnL, unrealizedPnL, stagnationStart string
	var peakPrice, exitPrice sql.NullString
	var lastPriceCheck, exitTime, stagnationSetAt sql.NullInt64
	var levelsStr, sigsStr string
	var isMoonbag, isSimulated int
	var createdAt int64

	err := row.Scan(&p.ID, &p.SignalID, &p.TokenAddress, &p.WalletAddress, &p.Status, &entryPrice, &entryAmountSOL,
		&entryAmountTokens, &currentAmountTokens, &peakPrice, &lastPriceCheck, &p.ConvictionTier, &p.ExitStrategyID,
		&levelsStr, &sigsStr, &realizedPnL, &unrealizedPnL, &exitTime, &p.ExitReason, &exitPrice,
		&isMoonbag, &isSimulated, &p.ClusterID, &stagnationStart, &stagnationSetAt, &createdAt)
	if err != nil {
		return nil, err
	}

	p.EntryPrice, _ = decimal.NewFromString(entryPrice)
	p.EntryAmountSOL, _ = decimal.NewFromString(entryAmountSOL)
	p.EntryAmountTokens, _ = decimal.NewFromString(entryAmountTokens)
	p.CurrentAmountTokens, _ = decimal.NewFromString(currentAmountTokens)
	p.RealizedPnLSOL, _ = decimal.NewFromString(realizedPnL)
	p.UnrealizedPnLSOL, _ = decimal.NewFromString(unrealizedPnL)
	p.StagnationWindowStart, _ = decimal.NewFromString(stagnationStart)
	p.PeakPrice = nullStringToDecimalPtr(peakPrice)
	p.ExitPrice = nullStringToDecimalPtr(exitPrice)
	p.LastPriceCheck = timePtrFromUnix(lastPriceCheck)
	p.ExitTime = timePtrFromUnix(exitTime)
	p.StagnationWindowSetAt = timeFromUnix(stagnationSetAt)
	p.IsMoonbag = isMoonbag != 0
	p.IsSimulated = isSimulated != 0
	p.CreatedAt = time.Unix(createdAt, 0).UTC()

	var lv levelsJSON
	if err := json.Unmarshal([]byte(levelsStr), &lv); err != nil {
		return nil, err
	}
	p.Levels = domain.PositionLevels{
		EntryPrice: lv.EntryPrice, StopLossPrice: lv.StopLossPrice,
		MoonbagStopPrice: lv.MoonbagStopPrice, TrailingStopCurrentPrice: lv.TrailingStopCurrentPrice,
		TakeProfitLevels: lv.TakeProfitLevels,
	}
	if err := json.Unmarshal([]byte(sigsStr), &p.ExitTxSignatures); err != nil {
		return nil, err
	}
	return &p, nil
}

func decimalPtrString(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullStringToDecimalPtr(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid {
		return nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil
	}
	return &d
}

func timePtrUnix(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Unix()
}

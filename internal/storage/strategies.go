package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/domain"
)

// ExitStrategyStore is the SQLite-backed ports.ExitStrategyStore.
type ExitStrategyStore struct {
	db *DB
}

// NewExitStrategyStore builds an ExitStrategyStore over db.
func NewExitStrategyStore(db *DB) *ExitStrategyStore {
	return &ExitStrategyStore{db: db}
}

func (s *ExitStrategyStore) GetActive(ctx context.Context, name string) (*domain.ExitStrategy, error) {
	row := s.db.sql.QueryRowContext(ctx, strategySelectColumns+
		` WHERE name = ? AND status = 'Active' ORDER BY version DESC LIMIT 1`, name)
	strat, err := scanStrategy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return strat, err
}

func (s *ExitStrategyStore) Get(ctx context.Context, id string) (*domain.ExitStrategy, error) {
	row := s.db.sql.QueryRowContext(ctx, strategySelectColumns+` WHERE id = ?`, id)
	strat, err := scanStrategy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return strat, err
}

// Save activating a Draft into Active first archives whatever version of
// the same name was previously Active, per the ExitStrategy doc comment.
func (s *ExitStrategyStore) Save(ctx context.Context, strat *domain.ExitStrategy) error {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if strat.Status == domain.StrategyActive {
		if _, err := tx.ExecContext(ctx, `
			UPDATE exit_strategies SET status = 'Archived'
			WHERE name = ? AND status = 'Active' AND id != ?`, strat.Name, strat.ID); err != nil {
			return err
		}
	}

	rulesBytes, err := json.Marshal(strat.Rules)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO exit_strategies (id, name, version, status, rules_json, max_hold_hours, stagnation_hours,
			stagnation_threshold_pct, moonbag_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, version=excluded.version, status=excluded.status, rules_json=excluded.rules_json,
			max_hold_hours=excluded.max_hold_hours, stagnation_hours=excluded.stagnation_hours,
			stagnation_threshold_pct=excluded.stagnation_threshold_pct, moonbag_pct=excluded.moonbag_pct`,
		strat.ID, strat.Name, strat.Version, strat.Status, string(rulesBytes), strat.MaxHoldHours,
		strat.StagnationHours, strat.StagnationThresholdPct, strat.MoonbagPct.String())
	if err != nil {
		return err
	}
	return tx.Commit()
}

const strategySelectColumns = `
	SELECT id, name, version, status, rules_json, max_hold_hours, stagnation_hours, stagnation_threshold_pct, moonbag_pct
	FROM exit_strategies`

func scanStrategy(row rowScanner) (*domain.ExitStrategy, error) {
	var strat domain.ExitStrategy
	var rulesStr, moonbagPct string
	err := row.Scan(&strat.ID, &strat.Name, &strat.Version, &strat.Status, &rulesStr,
		&strat.MaxHoldHours, &strat.StagnationHours, &strat.StagnationThresholdPct, &moonbagPct)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rulesStr), &strat.Rules); err != nil {
		return nil, err
	}
	strat.MoonbagPct, _ = decimal.NewFromString(moonbagPct)
	return &strat, nil
}

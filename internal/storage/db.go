// Package storage provides the SQLite-backed implementations of every
// ports.*Store interface, covering the logical tables of spec.md §6:
// wallets, orders, order_status_log, positions, exit_executions,
// exit_strategies, system_state, circuit_breaker_triggers, signal_queue,
// position_slot_events, decay_events, and the append-only signal log.
package storage

import (
	"database/sql"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DB wraps the shared SQLite connection every store type is built on.
type DB struct {
	sql *sql.DB
}

// Open connects to path, applying the same WAL/busy-timeout pragmas the
// teacher repo uses, then creates every table if missing.
func Open(path string) (*DB, error) {
	dsn := path
	if !strings.Contains(path, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1) // sqlite only supports one writer at a time

	if err := createSchema(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("storage: database initialized")
	return &DB{sql: sqlDB}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS wallets (
		address TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		score REAL NOT NULL,
		win_rate REAL NOT NULL DEFAULT 0,
		total_pnl REAL NOT NULL DEFAULT 0,
		total_trades INTEGER NOT NULL DEFAULT 0,
		avg_pnl_per_trade REAL NOT NULL DEFAULT 0,
		rolling_win_rate REAL NOT NULL DEFAULT 0,
		rolling_wins INTEGER NOT NULL DEFAULT 0,
		rolling_losses INTEGER NOT NULL DEFAULT 0,
		rolling_window_size INTEGER NOT NULL DEFAULT 0,
		decay_status TEXT NOT NULL DEFAULT 'Ok',
		last_activity_at INTEGER,
		position_size_style TEXT NOT NULL DEFAULT '',
		hold_duration_style TEXT NOT NULL DEFAULT '',
		behavioral_confidence TEXT NOT NULL DEFAULT 'Low'
	);
	CREATE INDEX IF NOT EXISTS idx_wallets_status ON wallets(status);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		side TEXT NOT NULL,
		signal_id TEXT NOT NULL DEFAULT '',
		position_id TEXT NOT NULL DEFAULT '',
		token_address TEXT NOT NULL,
		amount_sol TEXT NOT NULL,
		amount_tokens TEXT NOT NULL,
		expected_price TEXT NOT NULL,
		actual_price TEXT NOT NULL DEFAULT '0',
		max_slippage_bps INTEGER NOT NULL,
		tx_signature TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL,
		next_retry_at INTEGER,
		last_error TEXT NOT NULL DEFAULT '',
		lease_owner TEXT NOT NULL DEFAULT '',
		lease_until INTEGER,
		is_simulated INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		filled_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	CREATE INDEX IF NOT EXISTS idx_orders_next_retry ON orders(next_retry_at);

	CREATE TABLE IF NOT EXISTS order_status_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL,
		changed_at INTEGER NOT NULL,
		old_status TEXT NOT NULL,
		new_status TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_order_status_log_order ON order_status_log(order_id);

	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		signal_id TEXT NOT NULL DEFAULT '',
		token_address TEXT NOT NULL,
		wallet_address TEXT NOT NULL,
		status TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		entry_amount_sol TEXT NOT NULL,
		entry_amount_tokens TEXT NOT NULL,
		current_amount_tokens TEXT NOT NULL,
		peak_price TEXT,
		last_price_check INTEGER,
		conviction_tier TEXT NOT NULL,
		exit_strategy_id TEXT NOT NULL DEFAULT '',
		levels_json TEXT NOT NULL,
		exit_tx_signatures_json TEXT NOT NULL DEFAULT '[]',
		realized_pnl_sol TEXT NOT NULL DEFAULT '0',
		unrealized_pnl_sol TEXT NOT NULL DEFAULT '0',
		exit_time INTEGER,
		exit_reason TEXT NOT NULL DEFAULT '',
		exit_price TEXT,
		is_moonbag INTEGER NOT NULL DEFAULT 0,
		is_simulated INTEGER NOT NULL DEFAULT 0,
		cluster_id TEXT NOT NULL DEFAULT '',
		stagnation_window_start TEXT NOT NULL DEFAULT '0',
		stagnation_window_set_at INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
	CREATE INDEX IF NOT EXISTS idx_positions_token ON positions(token_address);

	CREATE TABLE IF NOT EXISTS exit_executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		position_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		trigger_level TEXT NOT NULL DEFAULT '',
		tokens_sold TEXT NOT NULL,
		sol_received TEXT NOT NULL,
		pnl_sol TEXT NOT NULL,
		tx_signature TEXT NOT NULL DEFAULT '',
		executed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exit_executions_position ON exit_executions(position_id);

	CREATE TABLE IF NOT EXISTS exit_strategies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		version INTEGER NOT NULL,
		status TEXT NOT NULL,
		rules_json TEXT NOT NULL,
		max_hold_hours REAL NOT NULL DEFAULT 0,
		stagnation_hours REAL NOT NULL DEFAULT 0,
		stagnation_threshold_pct REAL NOT NULL DEFAULT 0,
		moonbag_pct TEXT NOT NULL DEFAULT '0'
	);
	CREATE INDEX IF NOT EXISTS idx_exit_strategies_name ON exit_strategies(name);

	CREATE TABLE IF NOT EXISTS signal_log (
		signal_id TEXT PRIMARY KEY,
		payload_json TEXT NOT NULL,
		tx_signature TEXT NOT NULL,
		execution_status TEXT NOT NULL DEFAULT '',
		execution_reason TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_signal_log_tx ON signal_log(tx_signature);

	CREATE TABLE IF NOT EXISTS signal_queue (
		id TEXT PRIMARY KEY,
		signal_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		enqueued_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS system_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		status TEXT NOT NULL,
		paused_at INTEGER,
		paused_by TEXT NOT NULL DEFAULT '',
		pause_reason TEXT NOT NULL DEFAULT '',
		resumed_at INTEGER,
		resumed_by TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS circuit_breaker_triggers (
		id TEXT PRIMARY KEY,
		breaker_type TEXT NOT NULL,
		threshold_value REAL NOT NULL,
		actual_value REAL NOT NULL,
		capital_at_trigger REAL NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS system_state_events (
		id TEXT PRIMARY KEY,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		operator TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS position_slot_events (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		signal_id TEXT NOT NULL DEFAULT '',
		at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS score_updates (
		id TEXT PRIMARY KEY,
		wallet_address TEXT NOT NULL,
		old_score REAL NOT NULL,
		new_score REAL NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_outcomes (
		id TEXT PRIMARY KEY,
		wallet_address TEXT NOT NULL,
		position_id TEXT NOT NULL,
		token_address TEXT NOT NULL,
		pnl_sol REAL NOT NULL,
		is_win INTEGER NOT NULL,
		hold_duration_seconds REAL NOT NULL,
		closed_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS decay_events (
		id TEXT PRIMARY KEY,
		wallet_address TEXT NOT NULL,
		old_status TEXT NOT NULL,
		new_status TEXT NOT NULL,
		old_score REAL NOT NULL,
		new_score REAL NOT NULL,
		rolling_win_rate REAL NOT NULL,
		consecutive_loss INTEGER NOT NULL,
		at INTEGER NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// unixOrZero converts a possibly-zero time.Time to a nullable unix
// timestamp; the zero Time stores as NULL rather than the 1970 epoch.
func unixOrZero(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func timeFromUnix(sec sql.NullInt64) time.Time {
	if !sec.Valid || sec.Int64 == 0 {
		return time.Time{}
	}
	return time.Unix(sec.Int64, 0).UTC()
}

func timePtrFromUnix(sec sql.NullInt64) *time.Time {
	if !sec.Valid {
		return nil
	}
	t := time.Unix(sec.Int64, 0).UTC()
	return &t
}

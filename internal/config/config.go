package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds every hot-reloadable option the core recognizes (spec §6).
type Config struct {
	Scoring       ScoringConfig       `mapstructure:"scoring"`
	Risk          RiskConfig          `mapstructure:"risk"`
	Sizing        SizingConfig        `mapstructure:"sizing"`
	Concentration ConcentrationConfig `mapstructure:"concentration"`
	Profiling     ProfilingConfig     `mapstructure:"profiling"`
	Decay         DecayConfig         `mapstructure:"decay"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Retries       RetriesConfig       `mapstructure:"retries"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Ingress       IngressConfig       `mapstructure:"ingress"`
}

// ScoringConfig drives C4/C5.
type ScoringConfig struct {
	TradeThreshold          float64 `mapstructure:"trade_threshold"`
	HighConvictionThreshold float64 `mapstructure:"high_conviction_threshold"`
	WalletWinRateWeight     float64 `mapstructure:"wallet_win_rate_weight"`
	WalletPnLWeight         float64 `mapstructure:"wallet_pnl_weight"`
	LeaderBonus             float64 `mapstructure:"leader_bonus"`
	PnLNormalizeMin         float64 `mapstructure:"pnl_normalize_min"`
	PnLNormalizeMax         float64 `mapstructure:"pnl_normalize_max"`
	MinClusterBoost         float64 `mapstructure:"min_cluster_boost"`
	MaxClusterBoost         float64 `mapstructure:"max_cluster_boost"`
}

// RiskConfig drives C6/C7.
type RiskConfig struct {
	DrawdownThresholdPct     float64 `mapstructure:"drawdown_threshold_pct"`
	WinRateThresholdPct      float64 `mapstructure:"win_rate_threshold_pct"`
	WinRateWindowSize        int     `mapstructure:"win_rate_window_size"`
	ConsecutiveLossThreshold int     `mapstructure:"consecutive_loss_threshold"`
	MaxConcurrentPositions   int     `mapstructure:"max_concurrent_positions"`
	NoSignalWarningHours     float64 `mapstructure:"no_signal_warning_hours"`
}

// SizingMode selects the position sizer algorithm.
type SizingMode string

const (
	SizingFixedPercent SizingMode = "FixedPercent"
	SizingRiskBased    SizingMode = "RiskBased"
)

// SizingConfig drives C9.
type SizingConfig struct {
	SizingMode                  SizingMode `mapstructure:"sizing_mode"`
	BasePositionPct              float64    `mapstructure:"base_position_pct"`
	RiskPerTradePct               float64    `mapstructure:"risk_per_trade_pct"`
	DefaultStopLossPct            float64    `mapstructure:"default_stop_loss_pct"`
	MinPositionSOL                 float64    `mapstructure:"min_position_sol"`
	MaxPositionSOL                 float64    `mapstructure:"max_position_sol"`
	HighConvictionMultiplier        float64    `mapstructure:"high_conviction_multiplier"`
	StandardConvictionMultiplier    float64    `mapstructure:"standard_conviction_multiplier"`
	ReserveSOL                       float64    `mapstructure:"reserve_sol"`
	MaxCapitalAllocationPct          float64    `mapstructure:"max_capital_allocation_pct"`
	TotalCapitalSOL                  float64    `mapstructure:"total_capital_sol"`
	MinConvictionThreshold          float64    `mapstructure:"min_conviction_threshold"`
}

// ConcentrationConfig drives C10.
type ConcentrationConfig struct {
	Enabled                    bool    `mapstructure:"concentration_limits_enabled"`
	MaxTokenConcentrationPct   float64 `mapstructure:"max_token_concentration_pct"`
	MaxClusterConcentrationPct float64 `mapstructure:"max_cluster_concentration_pct"`
	MaxPositionsPerCluster     int     `mapstructure:"max_positions_per_cluster"`
	BlockDuplicatePositions    bool    `mapstructure:"block_duplicate_positions"`
}

// ProfilingConfig drives C15.
type ProfilingConfig struct {
	BatchSize            int     `mapstructure:"profiling_batch_size"`
	WalletDelaySeconds    float64 `mapstructure:"profiling_wallet_delay_seconds"`
	SwapHistoryLimit      int     `mapstructure:"profiling_swap_history_limit"`
	WatchlistMinWinRate  float64 `mapstructure:"watchlist_min_win_rate"`
	WatchlistMinTrades   int     `mapstructure:"watchlist_min_trades"`
	PollIntervalSeconds  int     `mapstructure:"profiling_poll_interval_seconds"`
	MaxConsecutiveErrors int     `mapstructure:"profiling_max_consecutive_errors"`
}

// DecayConfig drives C16.
type DecayConfig struct {
	RollingWindowSize        int     `mapstructure:"rolling_window_size"`
	DecayThreshold           float64 `mapstructure:"decay_threshold"`
	RecoveryThreshold        float64 `mapstructure:"recovery_threshold"`
	DormancyDays             int     `mapstructure:"dormancy_days"`
	ConsecutiveLossThreshold int     `mapstructure:"consecutive_loss_threshold"`
	ScoreDowngradeDecay      float64 `mapstructure:"score_downgrade_decay"`
	ScoreDowngradeLoss       float64 `mapstructure:"score_downgrade_loss"`
	ScoreRecoveryBoost       float64 `mapstructure:"score_recovery_boost"`
	MinTrades                int     `mapstructure:"min_trades"`
}

// QueueConfig drives C8.
type QueueConfig struct {
	EnableQueue        bool `mapstructure:"enable_queue"`
	MaxQueueSize       int  `mapstructure:"max_queue_size"`
	QueueExpiryMinutes int  `mapstructure:"queue_expiry_minutes"`
}

// RetriesConfig drives C14.
type RetriesConfig struct {
	RetryDelaysSeconds     []int `mapstructure:"retry_delays_seconds"`
	MaxAttempts            int   `mapstructure:"max_attempts"`
	RetryWorkerPollSeconds int   `mapstructure:"retry_worker_poll_interval_seconds"`
	RetryWorkerBatchSize   int   `mapstructure:"retry_worker_batch_size"`
	LeaseTTLSeconds        int   `mapstructure:"lease_ttl_seconds"`
}

// StorageConfig points at the persistence backend.
type StorageConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

// IngressConfig configures the webhook/websocket ingress surface.
type IngressConfig struct {
	ListenHost          string `mapstructure:"listen_host"`
	ListenPort          int    `mapstructure:"listen_port"`
	ReconnectDelayMs    int    `mapstructure:"reconnect_delay_ms"`
	PingIntervalMs      int    `mapstructure:"ping_interval_ms"`
}

// ValidationError names the offending field and why it was rejected, so
// operators don't have to diff the whole document to find one typo.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Validate checks the cross-field and range constraints spec §6 calls out.
// It does not mutate the config; callers decide whether to reject a reload.
func (c *Config) Validate() error {
	if c.Scoring.TradeThreshold < 0.5 || c.Scoring.TradeThreshold > 0.9 {
		return &ValidationError{"scoring.trade_threshold", "must be within [0.5, 0.9]"}
	}
	if w := c.Scoring.WalletWinRateWeight + c.Scoring.WalletPnLWeight; w < 0.999 || w > 1.001 {
		return &ValidationError{"scoring.wallet_win_rate_weight+wallet_pnl_weight", "must sum to 1.0"}
	}
	if c.Scoring.LeaderBonus < 1.0 || c.Scoring.LeaderBonus > 2.0 {
		return &ValidationError{"scoring.leader_bonus", "must be within [1.0, 2.0]"}
	}
	if c.Concentration.MaxTokenConcentrationPct < 5.0 {
		return &ValidationError{"concentration.max_token_concentration_pct", "must be >= 5.0"}
	}
	if c.Concentration.MaxClusterConcentrationPct < 10.0 {
		return &ValidationError{"concentration.max_cluster_concentration_pct", "must be >= 10.0"}
	}
	if c.Concentration.MaxPositionsPerCluster < 1 || c.Concentration.MaxPositionsPerCluster > 10 {
		return &ValidationError{"concentration.max_positions_per_cluster", "must be within [1, 10]"}
	}
	if c.Sizing.SizingMode != SizingFixedPercent && c.Sizing.SizingMode != SizingRiskBased {
		return &ValidationError{"sizing.sizing_mode", "must be FixedPercent or RiskBased"}
	}
	return nil
}

// Manager handles config loading, validation and hot-reload.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	viper    *viper.Viper
	onChange func(*Config)
}

// NewManager loads configPath, applies defaults, validates, and starts
// watching the file for hot-reload.
func NewManager(configPath string) (*Manager, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("scoring.trade_threshold", 0.65)
	v.SetDefault("scoring.high_conviction_threshold", 0.85)
	v.SetDefault("scoring.wallet_win_rate_weight", 0.5)
	v.SetDefault("scoring.wallet_pnl_weight", 0.5)
	v.SetDefault("scoring.leader_bonus", 1.3)
	v.SetDefault("scoring.pnl_normalize_min", -1.0)
	v.SetDefault("scoring.pnl_normalize_max", 5.0)
	v.SetDefault("scoring.min_cluster_boost", 1.0)
	v.SetDefault("scoring.max_cluster_boost", 1.5)

	v.SetDefault("risk.drawdown_threshold_pct", 15.0)
	v.SetDefault("risk.win_rate_threshold_pct", 25.0)
	v.SetDefault("risk.win_rate_window_size", 20)
	v.SetDefault("risk.consecutive_loss_threshold", 5)
	v.SetDefault("risk.max_concurrent_positions", 5)
	v.SetDefault("risk.no_signal_warning_hours", 6.0)

	v.SetDefault("sizing.sizing_mode", string(SizingFixedPercent))
	v.SetDefault("sizing.base_position_pct", 2.0)
	v.SetDefault("sizing.risk_per_trade_pct", 1.0)
	v.SetDefault("sizing.default_stop_loss_pct", 50.0)
	v.SetDefault("sizing.min_position_sol", 0.05)
	v.SetDefault("sizing.max_position_sol", 1.0)
	v.SetDefault("sizing.high_conviction_multiplier", 1.5)
	v.SetDefault("sizing.standard_conviction_multiplier", 1.0)
	v.SetDefault("sizing.reserve_sol", 0.05)
	v.SetDefault("sizing.max_capital_allocation_pct", 50.0)
	v.SetDefault("sizing.total_capital_sol", 10.0)
	v.SetDefault("sizing.min_conviction_threshold", 0.65)

	v.SetDefault("concentration.concentration_limits_enabled", true)
	v.SetDefault("concentration.max_token_concentration_pct", 20.0)
	v.SetDefault("concentration.max_cluster_concentration_pct", 30.0)
	v.SetDefault("concentration.max_positions_per_cluster", 2)
	v.SetDefault("concentration.block_duplicate_positions", true)

	v.SetDefault("profiling.profiling_batch_size", 10)
	v.SetDefault("profiling.profiling_wallet_delay_seconds", 1.0)
	v.SetDefault("profiling.profiling_swap_history_limit", 200)
	v.SetDefault("profiling.watchlist_min_win_rate", 0.4)
	v.SetDefault("profiling.watchlist_min_trades", 5)
	v.SetDefault("profiling.profiling_poll_interval_seconds", 30)
	v.SetDefault("profiling.profiling_max_consecutive_errors", 5)

	v.SetDefault("decay.rolling_window_size", 20)
	v.SetDefault("decay.decay_threshold", 0.35)
	v.SetDefault("decay.recovery_threshold", 0.55)
	v.SetDefault("decay.dormancy_days", 14)
	v.SetDefault("decay.consecutive_loss_threshold", 4)
	v.SetDefault("decay.score_downgrade_decay", 0.80)
	v.SetDefault("decay.score_downgrade_loss", 0.95)
	v.SetDefault("decay.score_recovery_boost", 1.10)
	v.SetDefault("decay.min_trades", 5)

	v.SetDefault("queue.enable_queue", true)
	v.SetDefault("queue.max_queue_size", 20)
	v.SetDefault("queue.queue_expiry_minutes", 30)

	v.SetDefault("retries.retry_delays_seconds", []int{5, 15, 45})
	v.SetDefault("retries.max_attempts", 3)
	v.SetDefault("retries.retry_worker_poll_interval_seconds", 5)
	v.SetDefault("retries.retry_worker_batch_size", 10)
	v.SetDefault("retries.lease_ttl_seconds", 30)

	v.SetDefault("storage.sqlite_path", "./data/walltrack.db")

	v.SetDefault("ingress.listen_host", "0.0.0.0")
	v.SetDefault("ingress.listen_port", 8081)
	v.SetDefault("ingress.reconnect_delay_ms", 2000)
	v.SetDefault("ingress.ping_interval_ms", 15000)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		config: &cfg,
		viper:  v,
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("config file changed, reloading")
		m.reload()
	})

	return m, nil
}

// Get returns the current config (thread-safe).
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetOnChange registers a callback invoked after every successful reload.
func (m *Manager) SetOnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Update applies fn to an in-memory copy, validates it, and only on
// success persists it to the backing file and to the live config.
func (m *Manager) Update(fn func(*Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := *m.config
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}

	m.viper.Set("scoring", next.Scoring)
	m.viper.Set("risk", next.Risk)
	m.viper.Set("sizing", next.Sizing)
	m.viper.Set("concentration", next.Concentration)
	m.viper.Set("decay", next.Decay)
	m.viper.Set("queue", next.Queue)
	m.viper.Set("retries", next.Retries)
	m.viper.Set("storage", next.Storage)
	m.viper.Set("ingress", next.Ingress)
	m.viper.Set("profiling", next.Profiling)

	if err := m.viper.WriteConfig(); err != nil {
		return err
	}

	m.config = &next
	if m.onChange != nil {
		m.onChange(&next)
	}
	return nil
}

func (m *Manager) reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cfg Config
	if err := m.viper.Unmarshal(&cfg); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal config on reload")
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("rejected invalid config on reload, keeping previous")
		return
	}

	m.config = &cfg
	if m.onChange != nil {
		m.onChange(&cfg)
	}
}

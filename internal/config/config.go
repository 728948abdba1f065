// Package config defines all configuration for the order-flow trading
// engine. Config is loaded from a YAML file (default: configs/config.yaml)
// with sensitive fields overridable via ORDERFLOW_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun    bool            `mapstructure:"dry_run"`
	Feed      FeedConfig      `mapstructure:"data_feed"`
	Trading   TradingConfig   `mapstructure:"trading"`
	OrderFlow OrderFlowConfig `mapstructure:"order_flow"`
	Regime    RegimeConfig    `mapstructure:"regime"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Tier      TierConfig      `mapstructure:"tier"`
	Store     StoreConfig     `mapstructure:"store"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// FeedConfig selects and authenticates the live market data provider.
type FeedConfig struct {
	Provider string `mapstructure:"provider"` // "live" or "historical"
	WSURL    string `mapstructure:"ws_url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// TradingConfig sets the default instrument and bar timeframe.
type TradingConfig struct {
	DefaultSymbol    string        `mapstructure:"default_symbol"`
	DefaultTimeframe time.Duration `mapstructure:"default_timeframe"`
}

// OrderFlowConfig tunes the five pattern detectors.
//
//   - ImbalanceThreshold: diagonal bid/ask ratio that counts as an imbalance.
//   - ImbalanceMinVolume: minimum volume at a level before it can imbalance.
//   - StackedImbalanceMin: consecutive imbalanced levels required to stack.
//   - ExhaustionMinLevels/ExhaustionMinDecline: top/bottom-N volume decline
//     that counts as exhaustion.
//   - DivergenceLookback: bars of history the delta-divergence detector keeps.
//   - AbsorptionMinVolume: minimum volume for an absorption candidate.
//   - UnfinishedMaxVolume: volume below which a high/low level counts as thin.
type OrderFlowConfig struct {
	ImbalanceThreshold   float64 `mapstructure:"imbalance_threshold"`
	ImbalanceMinVolume   int64   `mapstructure:"imbalance_min_volume"`
	StackedImbalanceMin  int     `mapstructure:"stacked_imbalance_min"`
	ExhaustionMinLevels  int     `mapstructure:"exhaustion_min_levels"`
	ExhaustionMinDecline float64 `mapstructure:"exhaustion_min_decline"`
	DivergenceLookback   int     `mapstructure:"divergence_lookback"`
	AbsorptionMinVolume  int64   `mapstructure:"absorption_min_volume"`
	UnfinishedMaxVolume  int64   `mapstructure:"unfinished_max_volume"`
}

// RegimeConfig tunes the regime classifier's thresholds.
type RegimeConfig struct {
	MinRegimeScore            float64 `mapstructure:"min_regime_score"`
	MinRegimeConfidence       float64 `mapstructure:"min_regime_confidence"`
	ADXTrendThreshold         float64 `mapstructure:"adx_trend_threshold"`
	ADXWeakThreshold          float64 `mapstructure:"adx_weak_threshold"`
	ATRHighPercentile         float64 `mapstructure:"atr_high_percentile"`
	NewsBufferMinutes         int     `mapstructure:"news_buffer_minutes"`
	NoTradeBeforeOpenMinutes  int     `mapstructure:"no_trade_before_open_minutes"`
	NoTradeBeforeCloseMinutes int     `mapstructure:"no_trade_before_close_minutes"`
}

// ExecutionConfig sets the default bracket distances and fill tolerance.
type ExecutionConfig struct {
	DefaultStopTicks   int `mapstructure:"default_stop_ticks"`
	DefaultTargetTicks int `mapstructure:"default_target_ticks"`
	MaxSlippageTicks   int `mapstructure:"max_slippage_ticks"`
}

// RiskConfig sets the session-level limits, overridable per session.
type RiskConfig struct {
	DailyProfitTarget   float64 `mapstructure:"daily_profit_target"`
	DailyLossLimit      float64 `mapstructure:"daily_loss_limit"`
	MaxPositionSize     int     `mapstructure:"max_position_size"`
	MaxConcurrentTrades int     `mapstructure:"max_concurrent_trades"`
}

// TierConfig sets the starting balance for the capital-tier ladder.
type TierConfig struct {
	StartingBalance float64 `mapstructure:"starting_balance"`
}

// StoreConfig sets where snapshot and tick-log data is persisted.
type StoreConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	TickLogDSN string `mapstructure:"tick_log_dsn"`
}

// NotifyConfig configures the Discord webhook notifier.
type NotifyConfig struct {
	WebhookURL        string `mapstructure:"webhook_url"`
	AlertOnTrades     bool   `mapstructure:"alert_on_trades"`
	AlertOnConnection bool   `mapstructure:"alert_on_connection"`
	AlertOnLimits     bool   `mapstructure:"alert_on_limits"`
	AlertOnErrors     bool   `mapstructure:"alert_on_errors"`
}

// BrokerConfig authenticates the live broker REST client.
type BrokerConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// DashboardConfig controls the metrics/status HTTP server.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: ORDERFLOW_FEED_PASSWORD, ORDERFLOW_BROKER_API_KEY,
// ORDERFLOW_NOTIFY_WEBHOOK_URL, ORDERFLOW_DRY_RUN.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ORDERFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if pass := os.Getenv("ORDERFLOW_FEED_PASSWORD"); pass != "" {
		cfg.Feed.Password = pass
	}
	if key := os.Getenv("ORDERFLOW_BROKER_API_KEY"); key != "" {
		cfg.Broker.APIKey = key
	}
	if url := os.Getenv("ORDERFLOW_NOTIFY_WEBHOOK_URL"); url != "" {
		cfg.Notify.WebhookURL = url
	}
	if os.Getenv("ORDERFLOW_DRY_RUN") == "true" || os.Getenv("ORDERFLOW_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// setDefaults ports the original DEFAULT_CONFIG's values so a minimal YAML
// file still produces a runnable configuration. The file itself must exist:
// Load returns an error when it cannot be read.
func setDefaults(v *viper.Viper) {
	v.SetDefault("data_feed.provider", "live")
	v.SetDefault("trading.default_symbol", "MES")
	v.SetDefault("trading.default_timeframe", 5*time.Minute)

	v.SetDefault("order_flow.imbalance_threshold", 3.0)
	v.SetDefault("order_flow.imbalance_min_volume", 10)
	v.SetDefault("order_flow.stacked_imbalance_min", 3)
	v.SetDefault("order_flow.exhaustion_min_levels", 3)
	v.SetDefault("order_flow.exhaustion_min_decline", 0.30)
	v.SetDefault("order_flow.divergence_lookback", 5)
	v.SetDefault("order_flow.absorption_min_volume", 100)
	v.SetDefault("order_flow.unfinished_max_volume", 5)

	v.SetDefault("regime.min_regime_score", 4.0)
	v.SetDefault("regime.min_regime_confidence", 0.6)
	v.SetDefault("regime.adx_trend_threshold", 25.0)
	v.SetDefault("regime.adx_weak_threshold", 20.0)
	v.SetDefault("regime.atr_high_percentile", 70.0)
	v.SetDefault("regime.news_buffer_minutes", 15)
	v.SetDefault("regime.no_trade_before_open_minutes", 5)
	v.SetDefault("regime.no_trade_before_close_minutes", 15)

	v.SetDefault("execution.default_stop_ticks", 16)
	v.SetDefault("execution.default_target_ticks", 24)
	v.SetDefault("execution.max_slippage_ticks", 2)

	v.SetDefault("risk.daily_profit_target", 500.0)
	v.SetDefault("risk.daily_loss_limit", -300.0)
	v.SetDefault("risk.max_position_size", 2)
	v.SetDefault("risk.max_concurrent_trades", 1)

	v.SetDefault("tier.starting_balance", 2500.0)

	v.SetDefault("store.data_dir", "data/state")
	v.SetDefault("store.tick_log_dsn", "data/ticks.db")

	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.port", 8000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Trading.DefaultSymbol == "" {
		return fmt.Errorf("trading.default_symbol is required")
	}
	if c.OrderFlow.ImbalanceThreshold <= 0 {
		return fmt.Errorf("order_flow.imbalance_threshold must be > 0")
	}
	if c.Regime.MinRegimeConfidence <= 0 || c.Regime.MinRegimeConfidence > 1 {
		return fmt.Errorf("regime.min_regime_confidence must be in (0, 1]")
	}
	if c.Execution.DefaultStopTicks <= 0 {
		return fmt.Errorf("execution.default_stop_ticks must be > 0")
	}
	if c.Execution.DefaultTargetTicks <= 0 {
		return fmt.Errorf("execution.default_target_ticks must be > 0")
	}
	if c.Risk.MaxConcurrentTrades <= 0 {
		return fmt.Errorf("risk.max_concurrent_trades must be > 0")
	}
	if !c.DryRun && c.Feed.Provider == "live" && c.Feed.WSURL == "" {
		return fmt.Errorf("data_feed.ws_url is required for the live provider")
	}
	return nil
}

// Package config provides configuration management for the options engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"options-engine/internal/models"
)

// Config holds all application configuration.
type Config struct {
	App            AppConfig                        `mapstructure:"app"`
	Trading        TradingConfig                    `mapstructure:"trading"`
	Engine         EngineConfig                     `mapstructure:"engine"`
	Features       FeaturesConfig                   `mapstructure:"features"`
	Strategies     map[string]models.StrategyConfig `mapstructure:"strategies"`
	Risk           RiskConfig                       `mapstructure:"risk"`
	Guardrails     GuardrailConfig                  `mapstructure:"guardrails"`
	CircuitBreaker CircuitBreakerConfig             `mapstructure:"circuit_breaker"`
	HeatCap        HeatCapConfig                    `mapstructure:"heat_cap"`
	Store          StoreConfig                      `mapstructure:"store"`
	Redis          RedisConfig                      `mapstructure:"redis"`
	Kafka          KafkaConfig                      `mapstructure:"kafka"`
	Server         ServerConfig                     `mapstructure:"server"`
	Notifications  NotificationConfig               `mapstructure:"notifications"`
	Logging        LoggingConfig                    `mapstructure:"logging"`

	Thresholds Thresholds `mapstructure:"-"` // resolved from App.Env
}

// AppConfig holds process identity.
type AppConfig struct {
	Env     string `mapstructure:"env"` // production, development, test
	Version string `mapstructure:"version"`
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Mode   string  `mapstructure:"mode"` // "live", "paper"
	Equity float64 `mapstructure:"equity"`
}

// EngineConfig controls the evaluation runner.
type EngineConfig struct {
	Phase         int           `mapstructure:"phase"`
	MaxResults    int           `mapstructure:"max_results"`
	Concurrency   int           `mapstructure:"concurrency"`
	SourceTimeout time.Duration `mapstructure:"source_timeout"`
	FetchRate     float64       `mapstructure:"fetch_rate"` // fetches per second
	FetchBurst    int           `mapstructure:"fetch_burst"`
}

// FeaturesConfig holds feature flags.
type FeaturesConfig struct {
	IVRVEdge bool `mapstructure:"ivrv_edge"`
}

// RiskConfig holds per-trade sizing limits used by the strategy modules.
type RiskConfig struct {
	RiskPerTradePct     float64 `mapstructure:"risk_per_trade_pct"`
	MaxNotional         float64 `mapstructure:"max_notional"`
	MaxPortfolioRiskPct float64 `mapstructure:"max_portfolio_risk_pct"`
}

// GuardrailConfig holds the fallback limits for the guardrail evaluator.
// Values stored in the guardrails table take precedence.
type GuardrailConfig struct {
	MaxPositions       int           `mapstructure:"max_positions"`
	MaxEquityAtRiskPct float64       `mapstructure:"max_equity_at_risk_pct"`
	RiskPerTradePct    float64       `mapstructure:"risk_per_trade_pct"`
	Cooldown           time.Duration `mapstructure:"cooldown"`
}

// CircuitBreakerConfig holds the reject-rate breaker settings. The breaker
// only runs in live mode.
type CircuitBreakerConfig struct {
	MaxRejects int           `mapstructure:"max_rejects"`
	Window     time.Duration `mapstructure:"window"`
}

// HeatCapConfig holds the aggregate open-risk cap.
type HeatCapConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	MaxPct   float64       `mapstructure:"max_pct"`
	Lookback time.Duration `mapstructure:"lookback"`
}

// StoreConfig selects the relational store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // sqlite3, postgres
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig holds the key-value store settings. An empty address selects
// the in-memory cooldown store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig holds the proposal publisher settings.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// NotificationConfig holds the alert channels.
type NotificationConfig struct {
	Level    string         `mapstructure:"level"` // all, proposals_only, errors_only
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Terminal TerminalConfig `mapstructure:"terminal"`
}

// WebhookConfig holds a Slack-compatible incoming webhook.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// TerminalConfig prints alerts to stderr.
type TerminalConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Bell    bool `mapstructure:"bell"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Console    bool   `mapstructure:"console"`
}

// DefaultStrategies returns the default registry configuration.
func DefaultStrategies() map[models.StrategyID]models.StrategyConfig {
	return map[models.StrategyID]models.StrategyConfig{
		models.LongCall:       {Enabled: true, Phase: 1, MinScore: 50, MaxRiskPct: 0.02},
		models.BullPutCredit:  {Enabled: true, Phase: 1, MinScore: 50, MaxRiskPct: 0.02},
		models.LongPut:        {Enabled: true, Phase: 2, MinScore: 50, MaxRiskPct: 0.02},
		models.BearCallCredit: {Enabled: true, Phase: 2, MinScore: 50, MaxRiskPct: 0.02},
		models.IronCondor:     {Enabled: true, Phase: 3, MinScore: 55, MaxRiskPct: 0.02},
		models.CalendarCall:   {Enabled: true, Phase: 3, MinScore: 55, MaxRiskPct: 0.02},
		models.CalendarPut:    {Enabled: false, Phase: 3, MinScore: 55, MaxRiskPct: 0.02},
	}
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/optengine"
	}
	return filepath.Join(home, ".config", "optengine")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", EnvProduction)
	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.equity", 100000.0)

	v.SetDefault("engine.phase", 1)
	v.SetDefault("engine.max_results", 50)
	v.SetDefault("engine.concurrency", 4)
	v.SetDefault("engine.source_timeout", 10*time.Second)
	v.SetDefault("engine.fetch_rate", 5.0)
	v.SetDefault("engine.fetch_burst", 5)

	v.SetDefault("features.ivrv_edge", false)

	for id, sc := range DefaultStrategies() {
		key := "strategies." + strategyKey(id)
		v.SetDefault(key+".enabled", sc.Enabled)
		v.SetDefault(key+".phase", sc.Phase)
		v.SetDefault(key+".min_score", sc.MinScore)
		v.SetDefault(key+".max_risk_pct", sc.MaxRiskPct)
	}

	v.SetDefault("risk.risk_per_trade_pct", 0.5)
	v.SetDefault("risk.max_notional", 10000.0)
	v.SetDefault("risk.max_portfolio_risk_pct", 20.0)

	v.SetDefault("guardrails.max_positions", 5)
	v.SetDefault("guardrails.max_equity_at_risk_pct", 20.0)
	v.SetDefault("guardrails.risk_per_trade_pct", 2.5)
	v.SetDefault("guardrails.cooldown", 7*24*time.Hour)

	v.SetDefault("circuit_breaker.max_rejects", 3)
	v.SetDefault("circuit_breaker.window", 10*time.Minute)

	v.SetDefault("heat_cap.enabled", true)
	v.SetDefault("heat_cap.max_pct", 10.0)
	v.SetDefault("heat_cap.lookback", 24*time.Hour)

	v.SetDefault("store.driver", "sqlite3")
	v.SetDefault("store.dsn", filepath.Join(DefaultConfigDir(), "optengine.db"))

	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "options.proposals")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("notifications.level", "all")
	v.SetDefault("notifications.webhook.enabled", false)
	v.SetDefault("notifications.telegram.enabled", false)
	v.SetDefault("notifications.terminal.enabled", false)
	v.SetDefault("notifications.terminal.bell", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.console", true)
}

// Load loads configuration from configFile, or from optengine.{toml,yaml}
// in the default config directory when configFile is empty. A missing file
// is not an error; defaults and environment overrides still apply.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("optengine")
		v.AddConfigPath(DefaultConfigDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.Thresholds = ThresholdsFor(cfg.App.Env).WithRisk(
		cfg.Risk.RiskPerTradePct, cfg.Risk.MaxNotional, cfg.Risk.MaxPortfolioRiskPct)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration with only defaults and environment
// overrides applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	applyEnvOverrides(cfg)
	cfg.Thresholds = ThresholdsFor(cfg.App.Env).WithRisk(
		cfg.Risk.RiskPerTradePct, cfg.Risk.MaxNotional, cfg.Risk.MaxPortfolioRiskPct)
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("ACCOUNT_EQUITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trading.Equity = f
		}
	}
	if v := os.Getenv("SAS_PHASE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.Phase = n
		}
	}
	if v := os.Getenv("ENABLE_IVRV_EDGE"); v != "" {
		cfg.Features.IVRVEdge = v == "true" || v == "1"
	}
	if v := os.Getenv("RISK_PER_TRADE_PCT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Risk.RiskPerTradePct = f
		}
	}
	if v := os.Getenv("MAX_NOTIONAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Risk.MaxNotional = f
		}
	}
	if v := os.Getenv("RISK_MAX_EQUITY_AT_RISK_PCT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Risk.MaxPortfolioRiskPct = f
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			cfg.Store.Driver = "postgres"
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Webhook.URL = v
		cfg.Notifications.Webhook.Enabled = true
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notifications.Telegram.BotToken = v
		cfg.Notifications.Telegram.ChatID = os.Getenv("TELEGRAM_CHAT_ID")
		cfg.Notifications.Telegram.Enabled = cfg.Notifications.Telegram.ChatID != ""
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := EngineVersion(); v != "dev" || cfg.App.Version == "" {
		cfg.App.Version = v
	}
}

// EngineVersion returns the build identifier from GIT_SHA or
// CF_PAGES_COMMIT_SHA, or "dev".
func EngineVersion() string {
	if v := os.Getenv("GIT_SHA"); v != "" {
		return v
	}
	if v := os.Getenv("CF_PAGES_COMMIT_SHA"); v != "" {
		return v
	}
	return "dev"
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.Mode != "" && c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return fmt.Errorf("invalid trading mode: %s (must be 'live' or 'paper')", c.Trading.Mode)
	}
	if c.Trading.Equity <= 0 {
		return fmt.Errorf("trading.equity must be positive")
	}
	if c.Engine.Phase < 1 || c.Engine.Phase > 3 {
		return fmt.Errorf("engine.phase must be between 1 and 3")
	}
	if c.Engine.MaxResults < 1 {
		return fmt.Errorf("engine.max_results must be at least 1")
	}
	for key, sc := range c.Strategies {
		if _, ok := StrategyIDForKey(key); !ok {
			return fmt.Errorf("unknown strategy %q", key)
		}
		if sc.Phase < 1 || sc.Phase > 3 {
			return fmt.Errorf("strategies.%s.phase must be between 1 and 3", key)
		}
		if sc.MinScore < 0 || sc.MinScore > 100 {
			return fmt.Errorf("strategies.%s.min_score must be between 0 and 100", key)
		}
	}
	if c.Guardrails.MaxPositions < 0 {
		return fmt.Errorf("guardrails.max_positions must be non-negative")
	}
	if c.Guardrails.MaxEquityAtRiskPct < 0 || c.Guardrails.MaxEquityAtRiskPct > 100 {
		return fmt.Errorf("guardrails.max_equity_at_risk_pct must be between 0 and 100")
	}
	if c.HeatCap.MaxPct < 0 || c.HeatCap.MaxPct > 100 {
		return fmt.Errorf("heat_cap.max_pct must be between 0 and 100")
	}
	if c.CircuitBreaker.MaxRejects < 1 {
		return fmt.Errorf("circuit_breaker.max_rejects must be at least 1")
	}
	if c.Store.Driver != "sqlite3" && c.Store.Driver != "postgres" {
		return fmt.Errorf("invalid store driver: %s (must be 'sqlite3' or 'postgres')", c.Store.Driver)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	return nil
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode != "live"
}

// IsLiveMode returns true in live trading mode.
func (c *Config) IsLiveMode() bool {
	return c.Trading.Mode == "live"
}

// CircuitBreakerEnabled reports whether the reject-rate breaker runs.
func (c *Config) CircuitBreakerEnabled() bool {
	return c.IsLiveMode()
}

// Strategy returns the registry configuration for id, falling back to the
// built-in default.
func (c *Config) Strategy(id models.StrategyID) models.StrategyConfig {
	if sc, ok := c.Strategies[strategyKey(id)]; ok {
		return sc
	}
	return DefaultStrategies()[id]
}

func strategyKey(id models.StrategyID) string {
	return strings.ToLower(string(id))
}

// StrategyIDForKey maps a config key such as "bear_call_credit" back to its
// strategy id.
func StrategyIDForKey(key string) (models.StrategyID, bool) {
	id := models.StrategyID(strings.ToUpper(key))
	_, ok := DefaultStrategies()[id]
	return id, ok
}

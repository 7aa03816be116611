// Package config defines all configuration for the scalp engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// every operational knob overridable via environment variables. The bare
// names SCORE_MIN, MAX_PRICE, ENTRY_COOLDOWN_SEC, TRAIL_ACTIVATE_PCT,
// TRAIL_GIVEBACK_PCT, HARD_STOP_LOSS_PCT and the Telegram credentials match
// the deployment environment and take priority over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	Symbols  SymbolsConfig  `mapstructure:"symbols"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Hub      HubConfig      `mapstructure:"hub"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Trail    TrailConfig    `mapstructure:"trail"`
	Trigger  TriggerConfig  `mapstructure:"trigger"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// SymbolsConfig locates the canonical symbol allowlist.
type SymbolsConfig struct {
	File string `mapstructure:"file"`
}

// JournalConfig sets where the SQLite journal lives and how long rows are
// retained before the daily prune pass deletes them.
type JournalConfig struct {
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// HubConfig tunes the ingestion hub.
//
//   - QueueSize: capacity of the bounded unified-tick queue. On overflow the
//     oldest tick is dropped so the stream stays newest-wins.
//   - PollInterval: cadence of the funding/open-interest REST loop.
//   - PollWindow: max symbols fetched per venue per poll cycle.
//   - StaleAfter: per-stream silence before the staleness monitor warns.
type HubConfig struct {
	QueueSize    int           `mapstructure:"queue_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollWindow   int           `mapstructure:"poll_window"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
}

// EngineConfig holds the orchestrator's entry gates.
type EngineConfig struct {
	ScoreMin        float64       `mapstructure:"score_min"`
	MaxPrice        float64       `mapstructure:"max_price"`
	EntryCooldown   time.Duration `mapstructure:"entry_cooldown"`
	ExitCooldown    time.Duration `mapstructure:"exit_cooldown"`
	DedupWindow     time.Duration `mapstructure:"dedup_window"`
	MaxDailySignals int           `mapstructure:"max_daily_signals"`
	BTCPollInterval time.Duration `mapstructure:"btc_poll_interval"`
}

// TrailConfig holds the trailing-stop parameters, in percent units.
// A short activates its trail at +ActivatePct unrealized PnL and exits when
// the giveback from peak reaches GivebackPct; HardStopPct is the loss cut.
type TrailConfig struct {
	ActivatePct float64 `mapstructure:"activate_pct"`
	GivebackPct float64 `mapstructure:"giveback_pct"`
	HardStopPct float64 `mapstructure:"hard_stop_pct"`
}

// TriggerConfig selects the entry-trigger condition set.
//
// The full set is seven conditions with MinConditions (default 6) required.
// The unified tick path cannot always observe trade-level sweeps; with
// UnifiedRelaxed set, the sweep condition is removed from the set and
// MinConditions-1 of the remaining six are required instead.
type TriggerConfig struct {
	MinConditions  int  `mapstructure:"min_conditions"`
	UnifiedRelaxed bool `mapstructure:"unified_relaxed"`
}

// TelegramConfig holds notifier credentials and per-symbol cooldowns.
// An empty token disables notifications entirely.
type TelegramConfig struct {
	Token          string        `mapstructure:"token"`
	ChatID         int64         `mapstructure:"chat_id"`
	SignalCooldown time.Duration `mapstructure:"signal_cooldown"`
	ExitCooldown   time.Duration `mapstructure:"exit_cooldown"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads config from an optional YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SCALP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); statErr == nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
			// Missing file is fine: defaults + env carry the full config.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("symbols.file", "state/symbols.txt")
	v.SetDefault("journal.path", "state/data.db")
	v.SetDefault("journal.retention_days", 7)
	v.SetDefault("hub.queue_size", 10000)
	v.SetDefault("hub.poll_interval", time.Minute)
	v.SetDefault("hub.poll_window", 50)
	v.SetDefault("hub.stale_after", time.Minute)
	v.SetDefault("engine.score_min", 60.0)
	v.SetDefault("engine.max_price", 5.0)
	v.SetDefault("engine.entry_cooldown", 5*time.Minute)
	v.SetDefault("engine.exit_cooldown", 2*time.Minute)
	v.SetDefault("engine.dedup_window", 15*time.Minute)
	v.SetDefault("engine.max_daily_signals", 8)
	v.SetDefault("engine.btc_poll_interval", 30*time.Second)
	v.SetDefault("trail.activate_pct", 0.6)
	v.SetDefault("trail.giveback_pct", 0.4)
	v.SetDefault("trail.hard_stop_pct", 1.2)
	v.SetDefault("trigger.min_conditions", 6)
	v.SetDefault("trigger.unified_relaxed", true)
	v.SetDefault("telegram.signal_cooldown", 5*time.Minute)
	v.SetDefault("telegram.exit_cooldown", 2*time.Minute)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// applyEnvOverrides maps the deployment's bare env names onto the config.
func applyEnvOverrides(cfg *Config) {
	if f, ok := envFloat("SCORE_MIN"); ok {
		cfg.Engine.ScoreMin = f
	}
	if f, ok := envFloat("MAX_PRICE"); ok {
		cfg.Engine.MaxPrice = f
	}
	if n, ok := envInt("ENTRY_COOLDOWN_SEC"); ok {
		cfg.Engine.EntryCooldown = time.Duration(n) * time.Second
	}
	if n, ok := envInt("EXIT_COOLDOWN_SEC"); ok {
		cfg.Engine.ExitCooldown = time.Duration(n) * time.Second
	}
	if f, ok := envFloat("TRAIL_ACTIVATE_PCT"); ok {
		cfg.Trail.ActivatePct = f
	}
	if f, ok := envFloat("TRAIL_GIVEBACK_PCT"); ok {
		cfg.Trail.GivebackPct = f
	}
	if f, ok := envFloat("HARD_STOP_LOSS_PCT"); ok {
		cfg.Trail.HardStopPct = f
	}
	if s := os.Getenv("TELEGRAM_TOKEN"); s != "" {
		cfg.Telegram.Token = s
	}
	if n, ok := envInt("TELEGRAM_CHAT_ID"); ok {
		cfg.Telegram.ChatID = int64(n)
	}
	if s := os.Getenv("SYMBOLS_FILE"); s != "" {
		cfg.Symbols.File = s
	}
	if s := os.Getenv("SCALP_DB_PATH"); s != "" {
		cfg.Journal.Path = s
	}
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		cfg.Logging.Level = s
	}
}

func envFloat(key string) (float64, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envInt(key string) (int, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Symbols.File == "" {
		return fmt.Errorf("symbols.file is required")
	}
	if c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required")
	}
	if c.Hub.QueueSize <= 0 {
		return fmt.Errorf("hub.queue_size must be > 0")
	}
	if c.Engine.ScoreMin < 0 || c.Engine.ScoreMin > 100 {
		return fmt.Errorf("engine.score_min must be in [0,100]")
	}
	if c.Engine.MaxPrice <= 0 {
		return fmt.Errorf("engine.max_price must be > 0")
	}
	if c.Trail.ActivatePct <= 0 || c.Trail.GivebackPct <= 0 || c.Trail.HardStopPct <= 0 {
		return fmt.Errorf("trail percentages must be > 0")
	}
	if c.Trigger.MinConditions < 1 || c.Trigger.MinConditions > 7 {
		return fmt.Errorf("trigger.min_conditions must be in [1,7]")
	}
	return nil
}

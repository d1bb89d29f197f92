// Package config provides configuration management for signal-trader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"signal-trader/internal/audit"
	"signal-trader/internal/capital"
	"signal-trader/internal/dispatch"
	"signal-trader/internal/engine"
	"signal-trader/internal/errors"
	"signal-trader/internal/ledger"
	"signal-trader/internal/logging"
)

// EnvPrefix prefixes environment overrides, e.g. SIGNAL_TRADER_LEDGER_INITIAL_CAPITAL.
const EnvPrefix = "SIGNAL_TRADER"

// Config holds all application configuration.
type Config struct {
	Engine     EngineConfig              `mapstructure:"engine"`
	Strategies map[string]engine.Profile `mapstructure:"strategies"`
	Dispatch   dispatch.Config           `mapstructure:"dispatch"`
	Ledger     LedgerConfig              `mapstructure:"ledger"`
	Capital    CapitalConfig             `mapstructure:"capital"`
	Log        logging.LogConfig         `mapstructure:"log"`
	Audit      audit.Config              `mapstructure:"audit"`
	Metrics    MetricsConfig             `mapstructure:"metrics"`

	// Path is the file the configuration was read from, empty when only
	// defaults were used.
	Path string `mapstructure:"-"`
}

// EngineConfig holds sizing and instrument resolution settings.
type EngineConfig struct {
	Sizing   engine.SizingPolicy   `mapstructure:"sizing"`
	Resolver engine.ResolverConfig `mapstructure:"resolver"`
}

// LedgerConfig holds the wallet settings and the database location.
type LedgerConfig struct {
	ledger.Config `mapstructure:",squash"`
	DBPath        string `mapstructure:"db_path"`
}

// CapitalConfig selects how capital snapshots are read.
type CapitalConfig struct {
	// Cache is "none" or "redis".
	Cache string              `mapstructure:"cache"`
	Redis capital.RedisConfig `mapstructure:"redis"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// EngineSettings assembles the engine configuration.
func (c *Config) EngineSettings() engine.Config {
	return engine.Config{
		Sizing:   c.Engine.Sizing,
		Resolver: c.Engine.Resolver,
		Profiles: c.Strategies,
	}
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/signal-trader"
	}
	return filepath.Join(home, ".config", "signal-trader")
}

// Load reads the configuration file at path. An empty path means
// config.toml in the default directory. A missing file is replaced by a
// commented template and the defaults are used. A .env file next to the
// config file is loaded first; variables already set in the environment win.
func Load(path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(DefaultConfigDir(), "config.toml")
	}
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	v := newViper()
	v.SetConfigFile(path)

	cfg := &Config{}
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading %s: %w", path, err)
			}
		}
		if err := createTemplateConfig(path); err != nil {
			return nil, err
		}
	} else {
		cfg.Path = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Strategies = mergeProfiles(cfg.Strategies)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied.
func Default() *Config {
	cfg := &Config{}
	if err := newViper().Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("decoding default config: %v", err))
	}
	cfg.Strategies = mergeProfiles(cfg.Strategies)
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	sizing := engine.DefaultSizingPolicy()
	v.SetDefault("engine.sizing.min_confidence", sizing.MinConfidence)
	v.SetDefault("engine.sizing.high_confidence", sizing.HighConfidence)
	v.SetDefault("engine.sizing.high_alloc_pct", sizing.HighAllocPct)
	v.SetDefault("engine.sizing.standard_alloc_pct", sizing.StandardAllocPct)

	resolver := engine.DefaultResolverConfig()
	v.SetDefault("engine.resolver.currency_pairs", resolver.CurrencyPairs)
	v.SetDefault("engine.resolver.currency_lot_size", resolver.CurrencyLotSize)
	v.SetDefault("engine.resolver.time_value_pct", resolver.TimeValuePct)
	v.SetDefault("engine.resolver.synthetic_lot_size", resolver.SyntheticLotSize)

	disp := dispatch.DefaultConfig()
	v.SetDefault("dispatch.wallet_id", disp.WalletID)
	v.SetDefault("dispatch.timeout", disp.Timeout)
	v.SetDefault("dispatch.dismiss_after", disp.DismissAfter)
	v.SetDefault("dispatch.stale_attempts", disp.StaleAttempts)
	v.SetDefault("dispatch.stale_backoff", disp.StaleBackoff)
	v.SetDefault("dispatch.breaker.failure_threshold", disp.Breaker.FailureThreshold)
	v.SetDefault("dispatch.breaker.success_threshold", disp.Breaker.SuccessThreshold)
	v.SetDefault("dispatch.breaker.cooldown", disp.Breaker.Cooldown)

	led := ledger.DefaultConfig()
	v.SetDefault("ledger.wallet_id", led.WalletID)
	v.SetDefault("ledger.initial_capital", led.InitialCapital)
	v.SetDefault("ledger.credit_shortfall", led.CreditShortfall)
	v.SetDefault("ledger.db_path", filepath.Join(DefaultConfigDir(), "ledger.db"))

	v.SetDefault("capital.cache", "none")
	v.SetDefault("capital.redis.addr", "localhost:6379")
	v.SetDefault("capital.redis.password", "")
	v.SetDefault("capital.redis.db", 0)
	v.SetDefault("capital.redis.ttl", 2*time.Second)

	lg := logging.DefaultLogConfig()
	v.SetDefault("log.level", lg.Level)
	v.SetDefault("log.console", lg.Console)
	v.SetDefault("log.file", lg.File)
	v.SetDefault("log.file_path", lg.FilePath)
	v.SetDefault("log.max_size", lg.MaxSize)
	v.SetDefault("log.max_backups", lg.MaxBackups)
	v.SetDefault("log.max_age", lg.MaxAge)

	au := audit.DefaultConfig()
	v.SetDefault("audit.enabled", au.Enabled)
	v.SetDefault("audit.log_dir", au.LogDir)
	v.SetDefault("audit.max_size", au.MaxSize)
	v.SetDefault("audit.max_backups", au.MaxBackups)
	v.SetDefault("audit.max_age", au.MaxAge)
	v.SetDefault("audit.compress", au.Compress)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")
}

// mergeProfiles lays configured strategy profiles over the built-in ones.
// Keys are matched case-insensitively; unset fields keep the built-in value.
func mergeProfiles(configured map[string]engine.Profile) map[string]engine.Profile {
	profiles := engine.DefaultProfiles()
	for key, p := range configured {
		name := strings.ToUpper(strings.TrimSpace(key))
		base, ok := profiles[name]
		if !ok {
			base = profiles[engine.StrategyConfluence]
		}
		base.Name = name
		if p.ConfidenceScale > 0 {
			base.ConfidenceScale = p.ConfidenceScale
		}
		if p.StopMultiple > 0 {
			base.StopMultiple = p.StopMultiple
		}
		if len(p.TargetMultiples) > 0 {
			base.TargetMultiples = p.TargetMultiples
		}
		if p.PartialClosePct > 0 {
			base.PartialClosePct = p.PartialClosePct
		}
		if p.TrailPercent > 0 {
			base.TrailPercent = p.TrailPercent
		}
		profiles[name] = base
	}
	return profiles
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	s := c.Engine.Sizing
	if s.MinConfidence < 0 || s.MinConfidence > 100 {
		return errors.Wrap(errors.ErrConfigInvalid, "engine.sizing.min_confidence must be between 0 and 100")
	}
	if s.HighConfidence < s.MinConfidence {
		return errors.Wrap(errors.ErrConfigInvalid, "engine.sizing.high_confidence must not be below min_confidence")
	}
	for name, pct := range map[string]float64{"high_alloc_pct": s.HighAllocPct, "standard_alloc_pct": s.StandardAllocPct} {
		if pct <= 0 || pct > 1 {
			return errors.Wrapf(errors.ErrConfigInvalid, "engine.sizing.%s must be in (0, 1]", name)
		}
	}
	if c.Engine.Resolver.TimeValuePct < 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "engine.resolver.time_value_pct must be non-negative")
	}

	for name, p := range c.Strategies {
		if p.StopMultiple <= 0 {
			return errors.Wrapf(errors.ErrConfigInvalid, "strategies.%s.stop_multiple must be positive", name)
		}
		prev := 0.0
		for _, m := range p.TargetMultiples {
			if m <= prev {
				return errors.Wrapf(errors.ErrConfigInvalid, "strategies.%s.target_multiples must be positive and increasing", name)
			}
			prev = m
		}
		if p.PartialClosePct < 0 || p.PartialClosePct > 100 {
			return errors.Wrapf(errors.ErrConfigInvalid, "strategies.%s.partial_close_pct must be between 0 and 100", name)
		}
	}

	if c.Dispatch.Timeout <= 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "dispatch.timeout must be positive")
	}
	if c.Dispatch.StaleAttempts < 1 {
		return errors.Wrap(errors.ErrConfigInvalid, "dispatch.stale_attempts must be at least 1")
	}
	if c.Ledger.InitialCapital <= 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "ledger.initial_capital must be positive")
	}
	if c.Ledger.DBPath == "" {
		return errors.Wrap(errors.ErrConfigInvalid, "ledger.db_path is required")
	}

	switch c.Capital.Cache {
	case "", "none":
	case "redis":
		if c.Capital.Redis.Addr == "" {
			return errors.Wrap(errors.ErrConfigInvalid, "capital.redis.addr is required when capital.cache is redis")
		}
	default:
		return errors.Wrapf(errors.ErrConfigInvalid, "capital.cache %q (must be 'none' or 'redis')", c.Capital.Cache)
	}
	return nil
}

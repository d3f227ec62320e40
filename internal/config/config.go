package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/portfolioapi/internal/infrastructure/db"
)

// Config represents the complete service configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Redis       RedisConfig       `yaml:"redis"`
	Database    db.Config         `yaml:"database"`
	Provider    ProviderConfig    `yaml:"provider"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	CallerLimit CallerLimitConfig `yaml:"caller_limit"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	InternalAPIKey  string        `yaml:"internal_api_key"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// RedisConfig holds the shared KV store settings. When disabled, limiter
// windows and cached results live in process memory.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

// ProviderConfig holds market data upstream settings
type ProviderConfig struct {
	BaseURL         string        `yaml:"base_url"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	MaxConcurrency  int           `yaml:"max_concurrency"`
	HostRPS         float64       `yaml:"host_rps"`
	HostBurst       int           `yaml:"host_burst"`
	BudgetKey       string        `yaml:"budget_key"`
	BudgetLimit     int           `yaml:"budget_limit"`
	BudgetWindow    time.Duration `yaml:"budget_window"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerOpenFor  time.Duration `yaml:"breaker_open_for"`
}

// AnalysisConfig holds engine settings
type AnalysisConfig struct {
	Benchmark       string        `yaml:"benchmark"`
	DefaultPeriod   string        `yaml:"default_period"`
	AllowedPeriods  []string      `yaml:"allowed_periods"`
	MaxTickers      int           `yaml:"max_tickers"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	SyntheticFactor float64       `yaml:"synthetic_factor"`
}

// CallerLimitConfig bounds analyses per client identity
type CallerLimitConfig struct {
	KeyPrefix string        `yaml:"key_prefix"`
	Limit     int           `yaml:"limit"`
	Window    time.Duration `yaml:"window"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // auto, json or console
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			RequestTimeout:  45 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Redis: RedisConfig{
			Enabled:  true,
			URL:      "redis://localhost:6379/0",
			PoolSize: 10,
		},
		Database: db.DefaultConfig(),
		Provider: ProviderConfig{
			BaseURL:         "https://query1.finance.yahoo.com",
			RequestTimeout:  15 * time.Second,
			MaxRetries:      2,
			MaxConcurrency:  4,
			HostRPS:         2,
			HostBurst:       2,
			BudgetKey:       "yfinance:download",
			BudgetLimit:     2,
			BudgetWindow:    time.Second,
			BreakerFailures: 3,
			BreakerOpenFor:  60 * time.Second,
		},
		Analysis: AnalysisConfig{
			Benchmark:       "SPY",
			DefaultPeriod:   "10y",
			AllowedPeriods:  []string{"1mo", "3mo", "6mo", "1y", "2y", "5y", "10y", "ytd", "max"},
			MaxTickers:      5,
			CacheTTL:        time.Hour,
			SyntheticFactor: 0.9,
		},
		CallerLimit: CallerLimitConfig{
			KeyPrefix: "api:portfolio:analyze",
			Limit:     10,
			Window:    60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads path over the defaults (a missing file is not an error) and
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s=%q: %w", key, v, err)
			}
			*dst = b
		}
		return nil
	}

	str("REDIS_URL", &cfg.Redis.URL)
	if err := boolean("REDIS_ENABLED", &cfg.Redis.Enabled); err != nil {
		return err
	}
	str("DATABASE_URL", &cfg.Database.DSN)
	if err := boolean("PG_ENABLED", &cfg.Database.Enabled); err != nil {
		return err
	}
	str("HTTP_HOST", &cfg.Server.Host)
	if v, ok := lookup("HTTP_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HTTP_PORT=%q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	str("INTERNAL_API_KEY", &cfg.Server.InternalAPIKey)
	str("LOG_LEVEL", &cfg.Log.Level)
	return nil
}

// BindFlags registers the command-line overrides on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("config", "config/portfolioapi.yaml", "path to YAML config file")
	fs.String("host", "", "HTTP listen host")
	fs.Int("port", 0, "HTTP listen port")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-format", "", "log format (auto, json, console)")
	fs.Bool("no-redis", false, "use in-process stores instead of Redis")
	fs.String("benchmark", "", "benchmark ticker")
}

// ApplyFlags copies explicitly set flags from fs into cfg.
func ApplyFlags(cfg *Config, fs *pflag.FlagSet) {
	if f := fs.Lookup("host"); f != nil && f.Changed {
		cfg.Server.Host = f.Value.String()
	}
	if fs.Changed("port") {
		if port, err := fs.GetInt("port"); err == nil {
			cfg.Server.Port = port
		}
	}
	if fs.Changed("log-level") {
		cfg.Log.Level, _ = fs.GetString("log-level")
	}
	if fs.Changed("log-format") {
		cfg.Log.Format, _ = fs.GetString("log-format")
	}
	if fs.Changed("no-redis") {
		if off, err := fs.GetBool("no-redis"); err == nil && off {
			cfg.Redis.Enabled = false
		}
	}
	if fs.Changed("benchmark") {
		b, _ := fs.GetString("benchmark")
		cfg.Analysis.Benchmark = strings.ToUpper(b)
	}
}

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PeriodAllowed reports whether p is an accepted period.
func (c *Config) PeriodAllowed(p string) bool {
	for _, allowed := range c.Analysis.AllowedPeriods {
		if p == allowed {
			return true
		}
	}
	return false
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required when redis is enabled")
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required when database is enabled")
	}
	if c.Database.Enabled {
		if c.Database.MaxOpenConns <= 0 {
			return fmt.Errorf("max_open_conns must be positive")
		}
		if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
			return fmt.Errorf("max_idle_conns cannot exceed max_open_conns")
		}
	}
	if c.Provider.BudgetLimit <= 0 || c.Provider.BudgetWindow <= 0 {
		return fmt.Errorf("provider budget must have a positive limit and window")
	}
	if c.CallerLimit.Limit <= 0 || c.CallerLimit.Window <= 0 {
		return fmt.Errorf("caller limit must have a positive limit and window")
	}
	if c.Analysis.MaxTickers <= 0 {
		return fmt.Errorf("analysis.max_tickers must be positive")
	}
	if c.Analysis.Benchmark == "" {
		return fmt.Errorf("analysis.benchmark is required")
	}
	if !c.PeriodAllowed(c.Analysis.DefaultPeriod) {
		return fmt.Errorf("analysis.default_period %q is not in allowed_periods", c.Analysis.DefaultPeriod)
	}
	if c.Analysis.SyntheticFactor <= 0 {
		return fmt.Errorf("analysis.synthetic_factor must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "auto", "json", "console":
	default:
		return fmt.Errorf("log.format %q must be auto, json or console", c.Log.Format)
	}
	return nil
}

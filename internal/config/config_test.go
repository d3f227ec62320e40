package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "SPY", cfg.Analysis.Benchmark)
	assert.Equal(t, "10y", cfg.Analysis.DefaultPeriod)
	assert.Equal(t, 5, cfg.Analysis.MaxTickers)
	assert.Equal(t, 2, cfg.Provider.BudgetLimit)
	assert.Equal(t, time.Second, cfg.Provider.BudgetWindow)
	assert.Equal(t, 10, cfg.CallerLimit.Limit)
	assert.Equal(t, time.Minute, cfg.CallerLimit.Window)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Analysis, cfg.Analysis)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolioapi.yaml")
	content := `
server:
  port: 9090
  internal_api_key: s3cret
analysis:
  benchmark: QQQ
  cache_ttl: 30m
provider:
  budget_window: 2s
database:
  enabled: true
  dsn: postgres://localhost/portfolio?sslmode=disable
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Server.InternalAPIKey)
	assert.Equal(t, "QQQ", cfg.Analysis.Benchmark)
	assert.Equal(t, 30*time.Minute, cfg.Analysis.CacheTTL)
	assert.Equal(t, 2*time.Second, cfg.Provider.BudgetWindow)
	assert.True(t, cfg.Database.Enabled)
	// Untouched fields keep their defaults
	assert.Equal(t, "10y", cfg.Analysis.DefaultPeriod)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()
	err := applyEnvOverrides(&cfg, envMap(map[string]string{
		"REDIS_URL":        "redis://cache:6379/1",
		"REDIS_ENABLED":    "false",
		"DATABASE_URL":     "postgres://db/portfolio",
		"PG_ENABLED":       "true",
		"HTTP_HOST":        "127.0.0.1",
		"HTTP_PORT":        "8080",
		"INTERNAL_API_KEY": "k",
		"LOG_LEVEL":        "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "postgres://db/portfolio", cfg.Database.DSN)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, "k", cfg.Server.InternalAPIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestApplyEnvOverrides_InvalidValues(t *testing.T) {
	cfg := Default()
	assert.Error(t, applyEnvOverrides(&cfg, envMap(map[string]string{"HTTP_PORT": "eighty"})))
	assert.Error(t, applyEnvOverrides(&cfg, envMap(map[string]string{"PG_ENABLED": "maybe"})))
}

func TestApplyFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port", "7000", "--no-redis", "--benchmark", "qqq", "--log-format", "json"}))

	cfg := Default()
	ApplyFlags(&cfg, fs)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "QQQ", cfg.Analysis.Benchmark)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset flags leave config alone")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"redis url", func(c *Config) { c.Redis.URL = "" }},
		{"database dsn", func(c *Config) { c.Database.Enabled = true }},
		{"idle over open", func(c *Config) {
			c.Database.Enabled = true
			c.Database.DSN = "postgres://x"
			c.Database.MaxIdleConns = 50
		}},
		{"budget", func(c *Config) { c.Provider.BudgetLimit = 0 }},
		{"caller window", func(c *Config) { c.CallerLimit.Window = 0 }},
		{"max tickers", func(c *Config) { c.Analysis.MaxTickers = 0 }},
		{"benchmark", func(c *Config) { c.Analysis.Benchmark = "" }},
		{"default period", func(c *Config) { c.Analysis.DefaultPeriod = "7d" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPeriodAllowed(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.PeriodAllowed("5y"))
	assert.True(t, cfg.PeriodAllowed("ytd"))
	assert.False(t, cfg.PeriodAllowed("5Y"))
	assert.False(t, cfg.PeriodAllowed(""))
}

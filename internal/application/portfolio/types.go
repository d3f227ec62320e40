package portfolio

import (
	"errors"
	"time"

	"github.com/sawpanic/portfolioapi/internal/domain/charts"
	"github.com/sawpanic/portfolioapi/internal/domain/performance"
)

var (
	// ErrInvalidInput marks caller mistakes such as an empty ticker list.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoData is returned when no requested ticker produced a series.
	ErrNoData = errors.New("failed to download returns for any stock")
	// ErrNoCommonDates is returned when portfolio and benchmark never overlap.
	ErrNoCommonDates = errors.New("no common dates between portfolio and benchmark")
)

// Request describes one analysis.
type Request struct {
	Tickers   []string
	Period    string // provider range such as "10y"; defaults to Config.DefaultPeriod
	StartDate string // optional YYYY-MM-DD, overrides Period when valid
}

// Period is the resolved analysed date range.
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// BenchmarkInfo names the benchmark used and whether it was synthesised from
// the portfolio because the real one could not be fetched.
type BenchmarkInfo struct {
	Ticker    string `json:"ticker"`
	Synthetic bool   `json:"synthetic"`
}

// Result is the cached, serialisable analysis outcome.
type Result struct {
	Metrics         performance.MetricSet `json:"metrics"`
	CumulativeChart charts.Line           `json:"cumulativeChart"`
	VolatilityChart charts.Line           `json:"volatilityChart"`
	Heatmap         []charts.HeatmapRow   `json:"heatmap"`
	Stocks          []string              `json:"stocks"`
	Period          Period                `json:"period"`
	Benchmark       BenchmarkInfo         `json:"benchmark"`
}

// Config holds the engine's tunables.
type Config struct {
	BenchmarkTicker string
	DefaultPeriod   string

	// Shared upstream budget, enforced across every caller and process.
	ProviderBudgetKey    string
	ProviderBudgetLimit  int
	ProviderBudgetWindow time.Duration

	CachePrefix string
	CacheTTL    time.Duration

	// SyntheticFactor scales the portfolio into a stand-in benchmark.
	SyntheticFactor float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BenchmarkTicker:      "SPY",
		DefaultPeriod:        "10y",
		ProviderBudgetKey:    "yfinance:download",
		ProviderBudgetLimit:  2,
		ProviderBudgetWindow: time.Second,
		CachePrefix:          "portfolio_analysis",
		CacheTTL:             time.Hour,
		SyntheticFactor:      0.9,
	}
}

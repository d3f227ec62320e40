package performance

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/portfolioapi/internal/domain/returns"
)

func daily(ticker string, start time.Time, rs ...float64) returns.Series {
	s := returns.Series{Ticker: ticker}
	for i, r := range rs {
		s.Points = append(s.Points, returns.Point{Date: start.AddDate(0, 0, i), Return: r})
	}
	return s
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		portfolio float64
		benchmark float64
		reverse   bool
		want      int
	}{
		{"parity", 0.1, 0.1, false, 50},
		{"double cagr", 0.20, 0.10, false, 100},
		{"half cagr", 0.05, 0.10, false, 25},
		{"clamped high", 0.50, 0.10, false, 100},
		{"negative ratio clamps to zero", -0.05, 0.10, false, 0},
		{"zero benchmark neutral", 0.3, 0, false, 50},
		{"smaller drawdown is better", -0.05, -0.10, true, 100},
		{"shallower drawdown beats parity", -0.08, -0.12, true, 75},
		{"larger volatility is worse", 0.30, 0.15, true, 25},
		{"zero portfolio reverse neutral", 0, -0.10, true, 50},
		{"rounding not truncation", 0.1, 0.3, false, 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.portfolio, tt.benchmark, tt.reverse))
		})
	}
}

func TestMaxDrawdown(t *testing.T) {
	// wealth: 1.1, 0.88, 0.968, 1.1616 -> trough 0.88 against peak 1.1
	mdd := MaxDrawdown([]float64{0.10, -0.20, 0.10, 0.20})
	assert.InDelta(t, -0.20, mdd, 1e-12)

	assert.Equal(t, 0.0, MaxDrawdown([]float64{0.01, 0.02, 0.03}))
	assert.Equal(t, 0.0, MaxDrawdown(nil))
}

func TestVolatilityAndSharpe(t *testing.T) {
	rs := []float64{0.01, -0.01, 0.01, -0.01}
	// sample std of ±0.01 alternating (n=4) = 0.01*sqrt(4/3)
	wantStd := 0.01 * math.Sqrt(4.0/3.0)

	assert.InDelta(t, wantStd, StdDev(rs), 1e-12)
	assert.InDelta(t, wantStd*math.Sqrt(252), Volatility(rs), 1e-12)
	assert.InDelta(t, 0, Sharpe(rs), 1e-12)

	assert.Equal(t, 0.0, Sharpe([]float64{0.01, 0.01, 0.01}), "zero dispersion")
	assert.Equal(t, 0.0, Volatility([]float64{0.01}), "single observation")

	up := []float64{0.02, 0.01, 0.03}
	assert.Greater(t, Sharpe(up), 0.0)
}

func TestCAGR(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	// Two points 365 days apart, total growth 10%.
	s := returns.Series{Points: []returns.Point{
		{Date: start, Return: 0},
		{Date: start.AddDate(0, 0, 365), Return: 0.10},
	}}
	assert.InDelta(t, 0.10, CAGR(s), 1e-12)

	single := daily("X", start, 0.05)
	assert.Equal(t, 0.0, CAGR(single))
}

func TestCompare(t *testing.T) {
	start := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	p := daily("Combined", start, 0.02, -0.01, 0.015, 0.01, -0.005)
	b := daily("SPY", start, 0.01, -0.015, 0.01, 0.008, -0.006)

	m := Compare(returns.Pair{Portfolio: p, Benchmark: b})

	assert.Greater(t, m.CAGR.Portfolio, m.CAGR.Benchmark)
	assert.Greater(t, m.CAGR.Percentage, 50)
	assert.LessOrEqual(t, m.MDD.Portfolio, 0.0)
	assert.Greater(t, m.MDD.Percentage, 50, "shallower drawdown scores above parity")

	for _, c := range []Comparison{m.CAGR, m.MDD, m.Sharpe, m.Volatility} {
		require.GreaterOrEqual(t, c.Percentage, 0)
		require.LessOrEqual(t, c.Percentage, 100)
		assert.Equal(t, Round(c.Portfolio, 2), c.Portfolio)
	}

	same := Compare(returns.Pair{Portfolio: p, Benchmark: p})
	assert.Equal(t, 50, same.CAGR.Percentage)
	assert.Equal(t, 50, same.MDD.Percentage)
	assert.Equal(t, 50, same.Sharpe.Percentage)
	assert.Equal(t, 50, same.Volatility.Percentage)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 12.35, Round(12.3456, 2))
	assert.Equal(t, -3.1, Round(-3.14, 1))
	assert.Equal(t, 0.0, Round(math.NaN(), 2))
}

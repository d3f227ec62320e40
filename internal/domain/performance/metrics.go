// Package performance derives risk/return statistics from daily return
// series and compares a portfolio against its benchmark.
package performance

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/sawpanic/portfolioapi/internal/domain/returns"
)

const (
	// TradingDays annualises daily statistics.
	TradingDays = 252
	// calendarYear converts a date span into years for CAGR.
	calendarYear = 365.0
	// flatStdDev treats float residue from a constant series as no dispersion.
	flatStdDev = 1e-12
)

// Compound returns Π(1+r) - 1.
func Compound(rs []float64) float64 {
	w := 1.0
	for _, r := range rs {
		w *= 1 + r
	}
	return w - 1
}

// CAGR is the compound annual growth rate over the series' calendar span:
// |Π(1+r)|^(1/years) - 1. A zero-length span yields 0.
func CAGR(s returns.Series) float64 {
	if s.Len() < 2 {
		return 0
	}
	years := s.Last().Sub(s.First()).Hours() / 24 / calendarYear
	if years <= 0 {
		return 0
	}
	total := Compound(s.Values())
	return finite(math.Pow(math.Abs(total+1), 1/years) - 1)
}

// MaxDrawdown is the most negative W_t / max(W_s, s<=t) - 1 over the wealth
// curve W_t = Π(1+r). It is <= 0.
func MaxDrawdown(rs []float64) float64 {
	var (
		wealth = 1.0
		peak   = math.Inf(-1)
		mdd    = 0.0
	)
	for _, r := range rs {
		wealth *= 1 + r
		if wealth > peak {
			peak = wealth
		}
		if peak > 0 {
			if dd := wealth/peak - 1; dd < mdd {
				mdd = dd
			}
		}
	}
	return finite(mdd)
}

// StdDev is the sample standard deviation (n-1 denominator). Fewer than two
// observations yield 0.
func StdDev(rs []float64) float64 {
	if len(rs) < 2 {
		return 0
	}
	return finite(stat.StdDev(rs, nil))
}

// Volatility annualises StdDev by √252.
func Volatility(rs []float64) float64 {
	return StdDev(rs) * math.Sqrt(TradingDays)
}

// Sharpe is mean/std·√252 with a zero risk-free rate; zero dispersion
// yields 0.
func Sharpe(rs []float64) float64 {
	sd := StdDev(rs)
	if sd < flatStdDev {
		return 0
	}
	return finite(stat.Mean(rs, nil) / sd * math.Sqrt(TradingDays))
}

// Score places portfolio relative to benchmark on 0..100 where 50 is parity.
// For reverse metrics (lower is better) both values are compared by
// magnitude and the ratio is inverted. Undefined ratios score 50.
func Score(portfolio, benchmark float64, reverse bool) int {
	if reverse {
		portfolio, benchmark = math.Abs(portfolio), math.Abs(benchmark)
	}
	if benchmark == 0 {
		return 50
	}

	var ratio float64
	if reverse {
		if portfolio == 0 {
			return 50
		}
		ratio = benchmark / portfolio
	} else {
		ratio = portfolio / benchmark
	}

	score := math.Round(50 * ratio)
	switch {
	case math.IsNaN(score):
		return 50
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return int(score)
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return finite(math.Round(v*p) / p)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

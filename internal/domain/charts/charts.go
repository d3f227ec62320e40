// Package charts projects an aligned portfolio/benchmark pair into
// down-sampled, plot-ready series.
package charts

import (
	"math"
	"sort"
	"strconv"

	"github.com/sawpanic/portfolioapi/internal/domain/performance"
	"github.com/sawpanic/portfolioapi/internal/domain/returns"
)

const (
	// MaxCumulativePoints caps the cumulative chart.
	MaxCumulativePoints = 400
	// MaxVolatilityPoints caps the rolling volatility chart.
	MaxVolatilityPoints = 200
	// VolatilityWindow is one quarter of trading days.
	VolatilityWindow = 63
)

// Line is a two-leg chart sharing one label axis.
type Line struct {
	Labels    []string  `json:"labels"`
	Portfolio []float64 `json:"portfolio"`
	Benchmark []float64 `json:"benchmark"`
}

// HeatmapRow is one calendar year of monthly returns in percent. Months is
// indexed January=0; nil marks a month without data.
type HeatmapRow struct {
	Year   string     `json:"year"`
	Months []*float64 `json:"months"`
}

// Step returns the sampling stride n/target, minimum 1. Sampled series stay
// under 2*target points.
func Step(n, target int) int {
	if target <= 0 || n/target < 1 {
		return 1
	}
	return n / target
}

// Cumulative returns Π(1+r)-1 for both legs, sampled every Step points.
func Cumulative(pair returns.Pair) Line {
	n := pair.Len()
	step := Step(n, MaxCumulativePoints)

	line := newLine(n, step)
	pw, bw := 1.0, 1.0
	for i := 0; i < n; i++ {
		pw *= 1 + pair.Portfolio.Points[i].Return
		bw *= 1 + pair.Benchmark.Points[i].Return
		if i%step == 0 {
			line.add(pair.Portfolio.Points[i].Date.Format(returns.DateLayout), pw-1, bw-1)
		}
	}
	return line
}

// RollingVolatility returns the annualised standard deviation over a
// trailing window for both legs. Positions before the first full window are
// dropped; the remainder is sampled every Step points.
func RollingVolatility(pair returns.Pair, window int) Line {
	n := pair.Len()
	if window < 2 || n < window {
		return newLine(0, 1)
	}

	valid := n - window + 1
	step := Step(valid, MaxVolatilityPoints)
	line := newLine(valid, step)

	p, b := pair.Portfolio.Values(), pair.Benchmark.Values()
	for k := 0; k < valid; k += step {
		end := k + window
		line.add(
			pair.Portfolio.Points[end-1].Date.Format(returns.DateLayout),
			performance.Volatility(p[k:end]),
			performance.Volatility(b[k:end]),
		)
	}
	return line
}

// MonthlyHeatmap compounds portfolio returns per calendar month and lays
// them out as one 12-slot row per year, years ascending.
func MonthlyHeatmap(s returns.Series) []HeatmapRow {
	type month struct{ year, month int }
	growth := make(map[month]float64)
	years := make(map[int][]*float64)

	for _, p := range s.Points {
		k := month{p.Date.Year(), int(p.Date.Month())}
		g, ok := growth[k]
		if !ok {
			g = 1
		}
		growth[k] = g * (1 + p.Return)
		if _, ok := years[k.year]; !ok {
			years[k.year] = make([]*float64, 12)
		}
	}

	for k, g := range growth {
		v := performance.Round((g-1)*100, 1)
		years[k.year][k.month-1] = &v
	}

	ordered := make([]int, 0, len(years))
	for y := range years {
		ordered = append(ordered, y)
	}
	sort.Ints(ordered)

	rows := make([]HeatmapRow, 0, len(ordered))
	for _, y := range ordered {
		rows = append(rows, HeatmapRow{Year: strconv.Itoa(y), Months: years[y]})
	}
	return rows
}

func newLine(n, step int) Line {
	size := 0
	if n > 0 {
		size = (n + step - 1) / step
	}
	return Line{
		Labels:    make([]string, 0, size),
		Portfolio: make([]float64, 0, size),
		Benchmark: make([]float64, 0, size),
	}
}

func (l *Line) add(label string, p, b float64) {
	l.Labels = append(l.Labels, label)
	l.Portfolio = append(l.Portfolio, clean(p))
	l.Benchmark = append(l.Benchmark, clean(b))
}

// clean keeps JSON encodable values.
func clean(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

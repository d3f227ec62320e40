package performance

import "github.com/sawpanic/portfolioapi/internal/domain/returns"

// Comparison is one metric for portfolio and benchmark plus the relative
// standing score.
type Comparison struct {
	Portfolio  float64 `json:"portfolio"`
	Benchmark  float64 `json:"benchmark"`
	Percentage int     `json:"percentage"`
}

// MetricSet holds the four reported comparisons.
type MetricSet struct {
	CAGR       Comparison `json:"cagr"`
	MDD        Comparison `json:"mdd"`
	Sharpe     Comparison `json:"sharpe"`
	Volatility Comparison `json:"volatility"`
}

// Compare computes the MetricSet for an aligned pair. CAGR, MDD and
// volatility are reported as percentages with two decimals; Sharpe is
// reported as a two-decimal ratio. Scores use unrounded values.
func Compare(pair returns.Pair) MetricSet {
	p, b := pair.Portfolio.Values(), pair.Benchmark.Values()

	pCAGR, bCAGR := CAGR(pair.Portfolio), CAGR(pair.Benchmark)
	pMDD, bMDD := MaxDrawdown(p), MaxDrawdown(b)
	pSharpe, bSharpe := Sharpe(p), Sharpe(b)
	pVol, bVol := Volatility(p), Volatility(b)

	return MetricSet{
		CAGR:       pct(pCAGR, bCAGR, Score(pCAGR, bCAGR, false)),
		MDD:        pct(pMDD, bMDD, Score(pMDD, bMDD, true)),
		Sharpe:     ratio(pSharpe, bSharpe, Score(pSharpe, bSharpe, false)),
		Volatility: pct(pVol, bVol, Score(pVol, bVol, true)),
	}
}

func pct(p, b float64, score int) Comparison {
	return Comparison{Portfolio: Round(p*100, 2), Benchmark: Round(b*100, 2), Percentage: score}
}

func ratio(p, b float64, score int) Comparison {
	return Comparison{Portfolio: Round(p, 2), Benchmark: Round(b, 2), Percentage: score}
}

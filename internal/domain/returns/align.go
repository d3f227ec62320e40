package returns

import "time"

// Pair is a portfolio and a benchmark restricted to the same dates.
type Pair struct {
	Portfolio Series
	Benchmark Series
}

// Len returns the number of shared dates.
func (p Pair) Len() int { return len(p.Portfolio.Points) }

// Empty reports whether the pair has no shared dates.
func (p Pair) Empty() bool { return p.Len() == 0 }

// TrimFrom trims both legs to dates on or after start.
func (p Pair) TrimFrom(start time.Time) Pair {
	return Pair{Portfolio: p.Portfolio.TrimFrom(start), Benchmark: p.Benchmark.TrimFrom(start)}
}

// Join inner-joins series on date. The result has one row per date present
// in every input, in ascending order; each row holds the inputs' returns in
// argument order.
func Join(series ...Series) ([]time.Time, [][]float64) {
	if len(series) == 0 {
		return nil, nil
	}

	counts := make(map[time.Time]int)
	for _, s := range series {
		for _, p := range s.Points {
			counts[p.Date]++
		}
	}

	// Walk the first series so output stays date-ordered.
	var dates []time.Time
	for _, p := range series[0].Points {
		if counts[p.Date] == len(series) {
			dates = append(dates, p.Date)
		}
	}

	rows := make([][]float64, len(dates))
	index := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		index[d] = i
		rows[i] = make([]float64, len(series))
	}
	for j, s := range series {
		for _, p := range s.Points {
			if i, ok := index[p.Date]; ok {
				rows[i][j] = p.Return
			}
		}
	}
	return dates, rows
}

// EqualWeight builds the equal-weighted mean of constituents over the dates
// present in all of them.
func EqualWeight(ticker string, constituents ...Series) Series {
	dates, rows := Join(constituents...)
	pts := make([]Point, len(dates))
	for i, d := range dates {
		var sum float64
		for _, r := range rows[i] {
			sum += r
		}
		pts[i] = Point{Date: d, Return: sum / float64(len(rows[i]))}
	}
	return Series{Ticker: ticker, Points: pts}
}

// Intersect restricts portfolio and benchmark to their common dates.
func Intersect(portfolio, benchmark Series) Pair {
	dates, rows := Join(portfolio, benchmark)
	p := make([]Point, len(dates))
	b := make([]Point, len(dates))
	for i, d := range dates {
		p[i] = Point{Date: d, Return: rows[i][0]}
		b[i] = Point{Date: d, Return: rows[i][1]}
	}
	return Pair{
		Portfolio: Series{Ticker: portfolio.Ticker, Points: p},
		Benchmark: Series{Ticker: benchmark.Ticker, Points: b},
	}
}

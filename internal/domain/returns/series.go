// Package returns models daily return series and the alignment operations
// used to build an equal-weighted portfolio against a benchmark.
package returns

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// DateLayout is the ISO calendar date format used for labels and inputs.
const DateLayout = "2006-01-02"

// ErrUnordered is returned when dates are not strictly increasing.
var ErrUnordered = errors.New("return series dates not strictly increasing")

// Point is one periodic return. Date is a civil date at UTC midnight.
type Point struct {
	Date   time.Time `json:"date"`
	Return float64   `json:"return"`
}

// Series is an ordered set of returns with strictly increasing dates.
type Series struct {
	Ticker string  `json:"ticker"`
	Points []Point `json:"points"`
}

// Day truncates t to its civil date at UTC midnight, keeping the calendar
// date as seen in t's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// Len returns the number of points.
func (s Series) Len() int { return len(s.Points) }

// Empty reports whether the series has no points.
func (s Series) Empty() bool { return len(s.Points) == 0 }

// Values returns the returns in date order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Return
	}
	return out
}

// First returns the first date. The series must not be empty.
func (s Series) First() time.Time { return s.Points[0].Date }

// Last returns the last date. The series must not be empty.
func (s Series) Last() time.Time { return s.Points[len(s.Points)-1].Date }

// Validate checks that points are finite, stamped at UTC midnight and
// strictly ordered.
func (s Series) Validate() error {
	for i, p := range s.Points {
		if math.IsNaN(p.Return) || math.IsInf(p.Return, 0) {
			return fmt.Errorf("%s: non-finite return on %s", s.Ticker, p.Date.Format(DateLayout))
		}
		if !p.Date.Equal(Day(p.Date)) {
			return fmt.Errorf("%s: %s is not a calendar day", s.Ticker, p.Date.Format(time.RFC3339))
		}
		if i > 0 && !p.Date.After(s.Points[i-1].Date) {
			return fmt.Errorf("%s at %s: %w", s.Ticker, p.Date.Format(DateLayout), ErrUnordered)
		}
	}
	return nil
}

// Normalize sorts points by date and drops duplicate dates (last one wins)
// and non-finite returns.
func (s Series) Normalize() Series {
	pts := make([]Point, 0, len(s.Points))
	for _, p := range s.Points {
		if math.IsNaN(p.Return) || math.IsInf(p.Return, 0) {
			continue
		}
		pts = append(pts, Point{Date: Day(p.Date), Return: p.Return})
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Date.Before(pts[j].Date) })

	out := pts[:0]
	for _, p := range pts {
		if n := len(out); n > 0 && out[n-1].Date.Equal(p.Date) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return Series{Ticker: s.Ticker, Points: out}
}

// TrimFrom keeps points dated on or after start.
func (s Series) TrimFrom(start time.Time) Series {
	start = Day(start)
	i := sort.Search(len(s.Points), func(i int) bool { return !s.Points[i].Date.Before(start) })
	return Series{Ticker: s.Ticker, Points: append([]Point(nil), s.Points[i:]...)}
}

// Scale returns a copy with every return multiplied by f.
func (s Series) Scale(ticker string, f float64) Series {
	pts := make([]Point, len(s.Points))
	for i, p := range s.Points {
		pts[i] = Point{Date: p.Date, Return: p.Return * f}
	}
	return Series{Ticker: ticker, Points: pts}
}

// FromPrices converts a price history into simple returns. The first price
// has no return and is dropped, as are points after a non-positive price.
func FromPrices(ticker string, dates []time.Time, prices []float64) (Series, error) {
	if len(dates) != len(prices) {
		return Series{}, fmt.Errorf("%s: %d dates for %d prices", ticker, len(dates), len(prices))
	}

	pts := make([]Point, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev <= 0 || math.IsNaN(prev) || math.IsNaN(prices[i]) {
			continue
		}
		pts = append(pts, Point{Date: Day(dates[i]), Return: prices[i]/prev - 1})
	}
	return Series{Ticker: ticker, Points: pts}.Normalize(), nil
}

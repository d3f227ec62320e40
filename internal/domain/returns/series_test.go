package returns

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func series(ticker string, kv ...interface{}) Series {
	s := Series{Ticker: ticker}
	for i := 0; i < len(kv); i += 2 {
		s.Points = append(s.Points, Point{Date: d(kv[i].(string)), Return: kv[i+1].(float64)})
	}
	return s
}

func TestFromPrices(t *testing.T) {
	dates := []time.Time{d("2024-01-02"), d("2024-01-03"), d("2024-01-04")}
	s, err := FromPrices("AAPL", dates, []float64{100, 110, 99})
	require.NoError(t, err)

	require.Equal(t, 2, s.Len())
	assert.Equal(t, d("2024-01-03"), s.First())
	assert.InDelta(t, 0.10, s.Points[0].Return, 1e-12)
	assert.InDelta(t, -0.10, s.Points[1].Return, 1e-12)
	assert.NoError(t, s.Validate())

	_, err = FromPrices("AAPL", dates, []float64{1})
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	s := series("X",
		"2024-01-03", 0.02,
		"2024-01-02", 0.01,
		"2024-01-03", 0.03,
		"2024-01-04", math.NaN(),
	).Normalize()

	require.Equal(t, 2, s.Len())
	assert.Equal(t, d("2024-01-02"), s.First())
	assert.Equal(t, 0.03, s.Points[1].Return, "duplicate date keeps the last value")
	assert.NoError(t, s.Validate())
}

func TestValidate(t *testing.T) {
	s := series("X", "2024-01-03", 0.01, "2024-01-02", 0.02)
	assert.ErrorIs(t, s.Validate(), ErrUnordered)

	s = series("X", "2024-01-02", math.Inf(1))
	assert.Error(t, s.Validate())

	s = Series{Ticker: "X", Points: []Point{{Date: d("2024-01-02").Add(14*time.Hour + 30*time.Minute), Return: 0.01}}}
	assert.Error(t, s.Validate())
	assert.NoError(t, s.Normalize().Validate())
}

func TestEqualWeight_InnerJoin(t *testing.T) {
	a := series("A", "2024-01-02", 0.02, "2024-01-03", 0.04, "2024-01-04", 0.06)
	b := series("B", "2024-01-03", 0.00, "2024-01-04", 0.02, "2024-01-05", 0.10)

	combined := EqualWeight("Combined", a, b)

	require.Equal(t, 2, combined.Len(), "only dates present in every constituent")
	assert.Equal(t, d("2024-01-03"), combined.Points[0].Date)
	assert.InDelta(t, 0.02, combined.Points[0].Return, 1e-12)
	assert.InDelta(t, 0.04, combined.Points[1].Return, 1e-12)
}

func TestEqualWeight_Single(t *testing.T) {
	a := series("A", "2024-01-02", 0.02, "2024-01-03", -0.01)
	combined := EqualWeight("Combined", a)
	assert.Equal(t, a.Values(), combined.Values())
}

func TestIntersectAndTrim(t *testing.T) {
	p := series("Combined", "2024-01-02", 0.01, "2024-01-03", 0.02, "2024-01-04", 0.03)
	b := series("SPY", "2024-01-03", 0.005, "2024-01-04", 0.006, "2024-01-05", 0.007)

	pair := Intersect(p, b)
	require.Equal(t, 2, pair.Len())
	for i := range pair.Portfolio.Points {
		assert.Equal(t, pair.Portfolio.Points[i].Date, pair.Benchmark.Points[i].Date)
	}
	assert.Equal(t, []float64{0.005, 0.006}, pair.Benchmark.Values())

	trimmed := pair.TrimFrom(d("2024-01-04"))
	assert.Equal(t, 1, trimmed.Len())
	assert.Equal(t, 1, trimmed.Benchmark.Len())

	assert.True(t, pair.TrimFrom(d("2030-01-01")).Empty())
}

func TestIntersect_Disjoint(t *testing.T) {
	p := series("Combined", "2024-01-02", 0.01)
	b := series("SPY", "2024-01-03", 0.02)
	assert.True(t, Intersect(p, b).Empty())
}

func TestScale(t *testing.T) {
	s := series("Combined", "2024-01-02", 0.10, "2024-01-03", -0.20)
	scaled := s.Scale("SPY", 0.9)

	assert.Equal(t, "SPY", scaled.Ticker)
	assert.InDelta(t, 0.09, scaled.Points[0].Return, 1e-12)
	assert.InDelta(t, -0.18, scaled.Points[1].Return, 1e-12)
	assert.InDelta(t, 0.10, s.Points[0].Return, 1e-12, "source untouched")
}

func TestDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// 16:00 New York on Jan 2 is already Jan 2 21:00 UTC; the civil date stays Jan 2.
	assert.Equal(t, d("2024-01-02"), Day(time.Date(2024, 1, 2, 16, 0, 0, 0, ny)))
}

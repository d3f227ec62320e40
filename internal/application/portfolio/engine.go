// Package portfolio orchestrates a portfolio analysis: budgeted downloads,
// equal weighting, benchmark alignment, metrics and chart series, with
// results cached by request.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/portfolioapi/internal/data/cache"
	"github.com/sawpanic/portfolioapi/internal/domain/charts"
	"github.com/sawpanic/portfolioapi/internal/domain/performance"
	"github.com/sawpanic/portfolioapi/internal/domain/returns"
	"github.com/sawpanic/portfolioapi/internal/metrics"
	"github.com/sawpanic/portfolioapi/internal/net/ratelimit"
)

// Provider downloads daily return series.
type Provider interface {
	DownloadReturns(ctx context.Context, ticker, period string) (returns.Series, error)
}

// Limiter gates calls against a shared budget.
type Limiter interface {
	WaitIfNeeded(ctx context.Context, key string, maxRequests int, window time.Duration) error
}

// Cache stores JSON results.
type Cache interface {
	GetJSON(ctx context.Context, key string, v interface{}) cache.Outcome
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) cache.Outcome
}

// Engine runs analyses. It holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	cfg      Config
	provider Provider
	limiter  Limiter
	cache    Cache
	metrics  *metrics.Registry
	log      zerolog.Logger
}

// NewEngine wires an engine. m may be nil.
func NewEngine(cfg Config, provider Provider, limiter Limiter, c Cache, m *metrics.Registry) *Engine {
	def := DefaultConfig()
	if cfg.BenchmarkTicker == "" {
		cfg.BenchmarkTicker = def.BenchmarkTicker
	}
	if cfg.DefaultPeriod == "" {
		cfg.DefaultPeriod = def.DefaultPeriod
	}
	if cfg.ProviderBudgetKey == "" {
		cfg.ProviderBudgetKey = def.ProviderBudgetKey
	}
	if cfg.ProviderBudgetLimit <= 0 {
		cfg.ProviderBudgetLimit = def.ProviderBudgetLimit
	}
	if cfg.ProviderBudgetWindow <= 0 {
		cfg.ProviderBudgetWindow = def.ProviderBudgetWindow
	}
	if cfg.CachePrefix == "" {
		cfg.CachePrefix = def.CachePrefix
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.SyntheticFactor == 0 {
		cfg.SyntheticFactor = def.SyntheticFactor
	}

	return &Engine{
		cfg:      cfg,
		provider: provider,
		limiter:  limiter,
		cache:    c,
		metrics:  m,
		log:      log.With().Str("component", "portfolio").Logger(),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Analyze runs one analysis. Cached results are returned verbatim.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	res, cached, err := e.analyze(ctx, req)
	switch {
	case err != nil:
		e.metrics.RecordAnalysis(metrics.ResultFailed, time.Since(start))
	case cached:
		e.metrics.RecordAnalysis(metrics.ResultCached, time.Since(start))
	default:
		e.metrics.RecordAnalysis(metrics.ResultComputed, time.Since(start))
	}
	return res, err
}

func (e *Engine) analyze(ctx context.Context, req Request) (*Result, bool, error) {
	tickers := NormalizeTickers(req.Tickers)
	if len(tickers) == 0 {
		return nil, false, fmt.Errorf("%w: at least one stock ticker is required", ErrInvalidInput)
	}
	period := req.Period
	if period == "" {
		period = e.cfg.DefaultPeriod
	}

	key := e.CacheKey(tickers, period, req.StartDate)
	var hit Result
	if e.cache.GetJSON(ctx, key, &hit) == cache.Hit {
		e.log.Debug().Str("key", key).Msg("Serving cached analysis")
		return &hit, true, nil
	}

	constituents, valid, err := e.fetchConstituents(ctx, tickers, period)
	if err != nil {
		return nil, false, err
	}

	combined := returns.EqualWeight("Combined", constituents...)

	benchmark, synthetic, err := e.fetchBenchmark(ctx, period, combined)
	if err != nil {
		return nil, false, err
	}

	pair := returns.Intersect(combined, benchmark)
	if pair.Empty() {
		return nil, false, ErrNoCommonDates
	}

	if req.StartDate != "" {
		if from, err := returns.ParseDate(req.StartDate); err != nil {
			e.log.Warn().Err(err).Str("start_date", req.StartDate).Msg("Ignoring invalid start date")
		} else if pair = pair.TrimFrom(from); pair.Empty() {
			return nil, false, fmt.Errorf("%w on or after %s", ErrNoCommonDates, req.StartDate)
		}
	}

	result := &Result{
		Metrics:         performance.Compare(pair),
		CumulativeChart: charts.Cumulative(pair),
		VolatilityChart: charts.RollingVolatility(pair, charts.VolatilityWindow),
		Heatmap:         charts.MonthlyHeatmap(pair.Portfolio),
		Stocks:          valid,
		Period: Period{
			Start: pair.Portfolio.First().Format(returns.DateLayout),
			End:   pair.Portfolio.Last().Format(returns.DateLayout),
		},
		Benchmark: BenchmarkInfo{Ticker: e.cfg.BenchmarkTicker, Synthetic: synthetic},
	}

	e.cache.SetJSON(ctx, key, result, e.cfg.CacheTTL)

	e.log.Info().
		Strs("stocks", valid).
		Str("period", period).
		Int("points", pair.Len()).
		Bool("synthetic_benchmark", synthetic).
		Msg("Portfolio analysed")
	return result, false, nil
}

// fetchConstituents downloads each ticker in order under the provider
// budget. Per-ticker failures drop the ticker; budget exhaustion and
// cancellation abort the call.
func (e *Engine) fetchConstituents(ctx context.Context, tickers []string, period string) ([]returns.Series, []string, error) {
	var (
		series []returns.Series
		valid  []string
	)

	for _, ticker := range tickers {
		s, err := e.fetch(ctx, ticker, period)
		if err != nil {
			if fatal(ctx, err) {
				return nil, nil, err
			}
			e.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to download returns, skipping ticker")
			continue
		}
		series = append(series, s)
		valid = append(valid, ticker)
	}

	if len(series) == 0 {
		return nil, nil, ErrNoData
	}
	return series, valid, nil
}

// fetchBenchmark downloads the benchmark, substituting a scaled copy of the
// portfolio when the download fails.
func (e *Engine) fetchBenchmark(ctx context.Context, period string, combined returns.Series) (returns.Series, bool, error) {
	s, err := e.fetch(ctx, e.cfg.BenchmarkTicker, period)
	if err == nil {
		return s, false, nil
	}
	if fatal(ctx, err) {
		return returns.Series{}, false, err
	}

	e.log.Warn().
		Err(err).
		Str("benchmark", e.cfg.BenchmarkTicker).
		Float64("factor", e.cfg.SyntheticFactor).
		Msg("Benchmark download failed, using synthetic benchmark")
	e.metrics.RecordSyntheticBenchmark()
	return combined.Scale(e.cfg.BenchmarkTicker, e.cfg.SyntheticFactor), true, nil
}

func (e *Engine) fetch(ctx context.Context, ticker, period string) (returns.Series, error) {
	if err := ctx.Err(); err != nil {
		return returns.Series{}, err
	}
	if err := e.limiter.WaitIfNeeded(ctx, e.cfg.ProviderBudgetKey, e.cfg.ProviderBudgetLimit, e.cfg.ProviderBudgetWindow); err != nil {
		return returns.Series{}, err
	}

	s, err := e.provider.DownloadReturns(ctx, ticker, period)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return returns.Series{}, ctxErr
		}
		return returns.Series{}, err
	}
	if err := s.Validate(); err != nil {
		e.log.Debug().Err(err).Str("ticker", ticker).Msg("Normalizing provider series")
		s = s.Normalize()
	}
	if s.Empty() {
		return returns.Series{}, fmt.Errorf("%s: empty series", ticker)
	}
	return s, nil
}

// CacheKey derives the result cache key. Ticker order and case do not
// matter.
func (e *Engine) CacheKey(tickers []string, period, startDate string) string {
	sorted := NormalizeTickers(tickers)
	sort.Strings(sorted)
	return cache.GenerateKey(e.cfg.CachePrefix,
		[]string{strings.Join(sorted, ","), period, startDate}, nil)
}

// NormalizeTickers trims and upper-cases tickers, drops blanks and
// duplicates, and keeps first-seen order.
func NormalizeTickers(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// fatal reports errors that end the whole call. A per-request upstream
// timeout is not fatal; the caller's own deadline is.
func fatal(ctx context.Context, err error) bool {
	return errors.Is(err, ratelimit.ErrLimitExceeded) || ctx.Err() != nil
}

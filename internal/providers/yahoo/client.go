// Package yahoo downloads daily adjusted-close histories from the Yahoo
// Finance v8 chart API and converts them into return series.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/portfolioapi/internal/domain/returns"
	"github.com/sawpanic/portfolioapi/internal/infrastructure/httpclient"
	"github.com/sawpanic/portfolioapi/internal/metrics"
	"github.com/sawpanic/portfolioapi/internal/net/circuit"
	"github.com/sawpanic/portfolioapi/internal/net/ratelimit"
)

// DefaultBaseURL is the public chart API host.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

const providerName = "yahoo"

// ErrNoData is returned when the upstream has no usable history for a symbol.
var ErrNoData = errors.New("no price history")

// Client implements the returns provider against the chart API.
type Client struct {
	baseURL string
	pool    *httpclient.ClientPool
	breaker *circuit.Breaker
	hosts   *ratelimit.HostLimiter
	metrics *metrics.Registry
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another host.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithBreaker overrides the circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithHostLimiter smooths request bursts per host.
func WithHostLimiter(h *ratelimit.HostLimiter) Option {
	return func(c *Client) { c.hosts = h }
}

// WithMetrics records fetch outcomes.
func WithMetrics(m *metrics.Registry) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a chart API client that sends through pool.
func NewClient(pool *httpclient.ClientPool, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		pool:    pool,
		breaker: circuit.NewBreaker(circuit.DefaultConfig(providerName)),
		log:     log.With().Str("component", "yahoo").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health is a snapshot of the breaker and transport counters.
type Health struct {
	Breaker         string `json:"breaker"`
	TotalRequests   int64  `json:"total_requests"`
	FailedRequests  int64  `json:"failed_requests"`
	RetriedRequests int64  `json:"retried_requests"`
}

// Health reports the breaker state and pool counters.
func (c *Client) Health() Health {
	stats := c.pool.GetStats()
	return Health{
		Breaker:         c.breaker.State(),
		TotalRequests:   stats.TotalRequests,
		FailedRequests:  stats.FailedRequests,
		RetriedRequests: stats.RetriedRequests,
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string `json:"symbol"`
				ExchangeTimezoneName string `json:"exchangeTimezoneName"`
				GMTOffset            int    `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// DownloadReturns fetches period of daily bars for ticker and returns simple
// daily returns on adjusted closes. Null bars are skipped.
func (c *Client) DownloadReturns(ctx context.Context, ticker, period string) (returns.Series, error) {
	start := time.Now()

	var series returns.Series
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		series, err = c.download(ctx, ticker, period)
		if errors.Is(err, ErrNoData) {
			// An unknown symbol is not an upstream fault.
			return nil
		}
		return err
	})

	switch {
	case err != nil:
		c.metrics.RecordProviderFetch(providerName, "error", time.Since(start))
		return returns.Series{}, err
	case series.Empty():
		c.metrics.RecordProviderFetch(providerName, "empty", time.Since(start))
		return returns.Series{}, fmt.Errorf("%s: %w", ticker, ErrNoData)
	}

	c.metrics.RecordProviderFetch(providerName, "ok", time.Since(start))
	c.log.Debug().
		Str("ticker", ticker).
		Str("period", period).
		Int("points", series.Len()).
		Msg("Downloaded returns")
	return series, nil
}

func (c *Client) download(ctx context.Context, ticker, period string) (returns.Series, error) {
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("range", period)
	params.Set("includeAdjustedClose", "true")
	reqURL := c.baseURL + "/v8/finance/chart/" + url.PathEscape(ticker) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return returns.Series{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.hosts != nil {
		if err := c.hosts.Wait(ctx, req.URL.Host); err != nil {
			return returns.Series{}, err
		}
	}

	resp, err := c.pool.Do(ctx, req)
	if err != nil {
		return returns.Series{}, fmt.Errorf("fetch %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return returns.Series{}, fmt.Errorf("read %s: %w", ticker, err)
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		if resp.StatusCode != http.StatusOK {
			return returns.Series{}, fmt.Errorf("%s: upstream status %d", ticker, resp.StatusCode)
		}
		return returns.Series{}, fmt.Errorf("parse %s: %w", ticker, err)
	}

	if e := chart.Chart.Error; e != nil {
		if resp.StatusCode == http.StatusNotFound || strings.EqualFold(e.Code, "Not Found") {
			return returns.Series{}, fmt.Errorf("%s: %s: %w", ticker, e.Description, ErrNoData)
		}
		return returns.Series{}, fmt.Errorf("%s: upstream error %s: %s", ticker, e.Code, e.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return returns.Series{}, fmt.Errorf("%s: upstream status %d", ticker, resp.StatusCode)
	}
	if len(chart.Chart.Result) == 0 {
		return returns.Series{}, fmt.Errorf("%s: %w", ticker, ErrNoData)
	}

	r := chart.Chart.Result[0]
	loc := exchangeLocation(r.Meta.ExchangeTimezoneName, r.Meta.GMTOffset)

	var closes []*float64
	if len(r.Indicators.AdjClose) > 0 {
		closes = r.Indicators.AdjClose[0].AdjClose
	} else if len(r.Indicators.Quote) > 0 {
		closes = r.Indicators.Quote[0].Close
	}

	dates := make([]time.Time, 0, len(r.Timestamp))
	prices := make([]float64, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		dates = append(dates, time.Unix(ts, 0).In(loc))
		prices = append(prices, *closes[i])
	}

	series, err := returns.FromPrices(strings.ToUpper(ticker), dates, prices)
	if err != nil {
		return returns.Series{}, err
	}
	if series.Empty() {
		return returns.Series{}, fmt.Errorf("%s: %w", ticker, ErrNoData)
	}
	return series, nil
}

func exchangeLocation(name string, offset int) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.FixedZone("exchange", offset)
}

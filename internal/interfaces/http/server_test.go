package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/portfolioapi/internal/application/portfolio"
	"github.com/sawpanic/portfolioapi/internal/interfaces/http/handlers"
	"github.com/sawpanic/portfolioapi/internal/metrics"
	"github.com/sawpanic/portfolioapi/internal/net/ratelimit"
	"github.com/sawpanic/portfolioapi/internal/persistence"
)

type stubEngine struct {
	delay time.Duration
}

func (s stubEngine) Analyze(ctx context.Context, req portfolio.Request) (*portfolio.Result, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &portfolio.Result{
		Stocks:    req.Tickers,
		Period:    portfolio.Period{Start: "2020-01-02", End: "2024-12-31"},
		Benchmark: portfolio.BenchmarkInfo{Ticker: "SPY"},
	}, nil
}

func newTestServer(t *testing.T, engine handlers.Analyzer, cfg ServerConfig) (*Server, *persistence.MemoryAudit, *metrics.Registry) {
	t.Helper()

	audit := persistence.NewMemoryAudit(0)
	reg := metrics.NewRegistry()
	h := handlers.NewHandlers(handlers.Config{
		Version:         "test",
		DefaultPeriod:   "10y",
		AllowedPeriods:  []string{"1y", "10y"},
		MaxTickers:      5,
		CallerKeyPrefix: "api:portfolio:analyze",
		CallerLimit:     3,
		CallerWindow:    time.Minute,
	}, handlers.Deps{
		Engine:  engine,
		Limiter: ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore()),
		Audit:   audit,
	})
	return NewServer(cfg, h, reg), audit, reg
}

func serve(s *Server, method, target string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if mutate != nil {
		mutate(req)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestServer_RootAndHealth(t *testing.T) {
	s, _, _ := newTestServer(t, stubEngine{}, DefaultServerConfig())

	rr := serve(s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var root handlers.RootResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &root))
	assert.Equal(t, "portfolioapi", root.Service)
	assert.Len(t, rr.Header().Get("X-Request-ID"), 8)

	rr = serve(s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"healthy"`)
}

func TestServer_AnalyzeRecordsAuditAndMetrics(t *testing.T) {
	s, audit, reg := newTestServer(t, stubEngine{}, DefaultServerConfig())

	rr := serve(s, http.MethodGet, "/api/portfolio/analyze?stocks=aapl,msft&period=1y", func(r *http.Request) {
		r.Header.Set("User-Agent", "portfolio-test/1.0")
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var res portfolio.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, []string{"AAPL", "MSFT"}, res.Stocks)

	stats, err := audit.APIStats(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.EndpointStats["/api/portfolio/analyze"].Count)

	rr = serve(s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `route="/api/portfolio/analyze"`)

	families, err := reg.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestServer_CallerLimit(t *testing.T) {
	s, audit, _ := newTestServer(t, stubEngine{}, DefaultServerConfig())

	var last *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		last = serve(s, http.MethodGet, "/api/portfolio/analyze?stocks=AAPL", nil)
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "60", last.Header().Get("Retry-After"))

	stats, err := audit.APIStats(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.FailedRequests)
}

func TestServer_RequestTimeoutMapsTo503(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.RequestTimeout = 20 * time.Millisecond
	s, _, _ := newTestServer(t, stubEngine{delay: time.Second}, cfg)

	rr := serve(s, http.MethodGet, "/api/portfolio/analyze?stocks=AAPL", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var body handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "timeout", body.Code)
	assert.NotEmpty(t, body.RequestID)
	assert.NotEqual(t, "unknown", body.RequestID)
}

func TestServer_InternalRoutesGuarded(t *testing.T) {
	s, _, _ := newTestServer(t, stubEngine{}, DefaultServerConfig())

	rr := serve(s, http.MethodGet, "/api/internal/api-metrics", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(s, http.MethodGet, "/api/internal/api-metrics?hours=1", func(r *http.Request) {
		r.RemoteAddr = "127.0.0.1:51000"
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"period_hours":1`)
}

func TestServer_NotFoundAndMethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t, stubEngine{}, DefaultServerConfig())

	rr := serve(s, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "endpoint_not_found")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = serve(s, http.MethodPost, "/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.CORSOrigins = []string{"http://localhost:3000"}
	s, _, _ := newTestServer(t, stubEngine{}, cfg)

	rr := serve(s, http.MethodOptions, "/api/portfolio/analyze", func(r *http.Request) {
		r.Header.Set("Origin", "http://localhost:3000")
	})
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = serve(s, http.MethodGet, "/", func(r *http.Request) {
		r.Header.Set("Origin", "http://evil.example")
	})
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), "GET"))
}

package handlers

import (
	"time"

	"github.com/sawpanic/portfolioapi/internal/persistence"
)

// ErrorResponse represents error responses
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// RootResponse identifies the service
type RootResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// HealthResponse represents the /health response
type HealthResponse struct {
	Status    string                 `json:"status"` // "healthy" or "degraded"
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents one backing store check
type CheckResult struct {
	Status    string `json:"status"` // "pass", "fail" or "disabled"
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// APIMetricsResponse represents /api/internal/api-metrics
type APIMetricsResponse struct {
	persistence.APIStats
	PeriodHours int `json:"period_hours"`
}

// PopularStocksResponse represents /api/internal/popular-stocks
type PopularStocksResponse struct {
	PopularStocks []persistence.TickerCount `json:"popular_stocks"`
	PeriodDays    int                       `json:"period_days"`
}

// AnalysesResponse represents /api/internal/analyses
type AnalysesResponse struct {
	Analyses []persistence.AnalysisLog `json:"analyses"`
	Count    int                       `json:"count"`
}

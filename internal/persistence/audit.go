package persistence

import (
	"context"
	"encoding/json"
	"time"
)

// APILog is one served HTTP request.
type APILog struct {
	ID             int64             `json:"id" db:"id"`
	Endpoint       string            `json:"endpoint" db:"endpoint"`
	Method         string            `json:"method" db:"method"`
	StatusCode     int               `json:"status_code" db:"status_code"`
	ResponseTimeMS float64           `json:"response_time_ms" db:"response_time_ms"`
	RequestParams  map[string]string `json:"request_params,omitempty" db:"-"`
	ClientIP       string            `json:"user_ip,omitempty" db:"user_ip"`
	UserAgent      string            `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
}

// AnalysisLog is one portfolio analysis attempt. Metrics is set on success,
// Error on failure.
type AnalysisLog struct {
	ID        int64           `json:"id" db:"id"`
	Stocks    []string        `json:"stocks" db:"-"`
	Period    string          `json:"period" db:"period"`
	StartDate *string         `json:"start_date,omitempty" db:"start_date"`
	Metrics   json.RawMessage `json:"metrics,omitempty" db:"-"`
	Error     *string         `json:"error,omitempty" db:"error"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// EndpointStats aggregates requests for one endpoint.
type EndpointStats struct {
	Count             int64   `json:"count"`
	AvgResponseTimeMS float64 `json:"avg_response_time"`
	ErrorCount        int64   `json:"error_count"`
}

// APIStats summarises API usage since a cutoff.
type APIStats struct {
	TotalRequests      int64                    `json:"total_requests"`
	SuccessfulRequests int64                    `json:"successful_requests"`
	FailedRequests     int64                    `json:"failed_requests"`
	SuccessRate        float64                  `json:"success_rate"`
	AvgResponseTimeMS  float64                  `json:"avg_response_time_ms"`
	EndpointStats      map[string]EndpointStats `json:"endpoint_stats"`
}

// TickerCount is how often a ticker appeared in analyses.
type TickerCount struct {
	Stock string `json:"stock" db:"stock"`
	Count int64  `json:"count" db:"count"`
}

// AuditRepo stores request and analysis logs and answers the internal
// usage queries.
type AuditRepo interface {
	// RecordAPIRequest appends one request log.
	RecordAPIRequest(ctx context.Context, entry APILog) error

	// RecordAnalysis appends one analysis log.
	RecordAnalysis(ctx context.Context, entry AnalysisLog) error

	// APIStats aggregates request logs created at or after since.
	APIStats(ctx context.Context, since time.Time) (APIStats, error)

	// PopularTickers counts tickers across analyses since the cutoff,
	// most frequent first.
	PopularTickers(ctx context.Context, since time.Time, limit int) ([]TickerCount, error)

	// RecentAnalyses returns the newest analyses first.
	RecentAnalyses(ctx context.Context, limit int) ([]AnalysisLog, error)
}

// HealthCheck represents the health status of a store
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool,omitempty"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// Finalize derives SuccessRate from the counters and ensures EndpointStats
// is non-nil.
func (s *APIStats) Finalize() {
	if s.EndpointStats == nil {
		s.EndpointStats = map[string]EndpointStats{}
	}
	if s.TotalRequests > 0 {
		s.SuccessRate = float64(s.SuccessfulRequests) / float64(s.TotalRequests) * 100
	}
}

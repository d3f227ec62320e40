package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/portfolioapi/internal/persistence"
)

// auditRepo implements persistence.AuditRepo for PostgreSQL
type auditRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAuditRepo creates a new PostgreSQL audit repository
func NewAuditRepo(db *sqlx.DB, timeout time.Duration) persistence.AuditRepo {
	return &auditRepo{db: db, timeout: timeout}
}

func (r *auditRepo) RecordAPIRequest(ctx context.Context, entry persistence.APILog) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	params, err := nullableJSON(entry.RequestParams)
	if err != nil {
		return fmt.Errorf("failed to marshal request params: %w", err)
	}

	query := `
		INSERT INTO api_logs (endpoint, method, status_code, response_time_ms, request_params, user_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.db.ExecContext(ctx, query,
		entry.Endpoint, entry.Method, entry.StatusCode, entry.ResponseTimeMS,
		params, nullString(entry.ClientIP), nullString(entry.UserAgent))
	if err != nil {
		return fmt.Errorf("failed to insert api log: %w", describe(err))
	}
	return nil
}

func (r *auditRepo) RecordAnalysis(ctx context.Context, entry persistence.AnalysisLog) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var metrics interface{}
	if len(entry.Metrics) > 0 {
		metrics = []byte(entry.Metrics)
	}

	query := `
		INSERT INTO portfolio_analysis_logs (stocks, period, start_date, metrics, error)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		strings.Join(entry.Stocks, ","), entry.Period, entry.StartDate, metrics, entry.Error)
	if err != nil {
		return fmt.Errorf("failed to insert analysis log: %w", describe(err))
	}
	return nil
}

type endpointRow struct {
	Endpoint      string  `db:"endpoint"`
	Count         int64   `db:"count"`
	ErrorCount    int64   `db:"error_count"`
	SuccessCount  int64   `db:"success_count"`
	TotalResponse float64 `db:"total_response_time"`
}

func (r *auditRepo) APIStats(ctx context.Context, since time.Time) (persistence.APIStats, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT endpoint,
		       COUNT(*) AS count,
		       COUNT(*) FILTER (WHERE status_code >= 400) AS error_count,
		       COUNT(*) FILTER (WHERE status_code >= 200 AND status_code < 300) AS success_count,
		       COALESCE(SUM(response_time_ms), 0) AS total_response_time
		FROM api_logs
		WHERE created_at >= $1
		GROUP BY endpoint`

	var rows []endpointRow
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return persistence.APIStats{}, fmt.Errorf("failed to query api stats: %w", describe(err))
	}

	stats := persistence.APIStats{EndpointStats: make(map[string]persistence.EndpointStats, len(rows))}
	var total float64
	for _, row := range rows {
		stats.TotalRequests += row.Count
		stats.SuccessfulRequests += row.SuccessCount
		stats.FailedRequests += row.ErrorCount
		total += row.TotalResponse

		es := persistence.EndpointStats{Count: row.Count, ErrorCount: row.ErrorCount}
		if row.Count > 0 {
			es.AvgResponseTimeMS = row.TotalResponse / float64(row.Count)
		}
		stats.EndpointStats[row.Endpoint] = es
	}
	if stats.TotalRequests > 0 {
		stats.AvgResponseTimeMS = total / float64(stats.TotalRequests)
	}
	stats.Finalize()
	return stats, nil
}

func (r *auditRepo) PopularTickers(ctx context.Context, since time.Time, limit int) ([]persistence.TickerCount, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT stock, COUNT(*) AS count
		FROM portfolio_analysis_logs,
		     unnest(string_to_array(stocks, ',')) AS stock
		WHERE created_at >= $1 AND stock <> ''
		GROUP BY stock
		ORDER BY count DESC, stock ASC
		LIMIT $2`

	var out []persistence.TickerCount
	if err := r.db.SelectContext(ctx, &out, query, since, limit); err != nil {
		return nil, fmt.Errorf("failed to query popular tickers: %w", describe(err))
	}
	return out, nil
}

func (r *auditRepo) RecentAnalyses(ctx context.Context, limit int) ([]persistence.AnalysisLog, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, stocks, period, start_date, metrics, error, created_at
		FROM portfolio_analysis_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent analyses: %w", describe(err))
	}
	defer rows.Close()

	var out []persistence.AnalysisLog
	for rows.Next() {
		var (
			a         persistence.AnalysisLog
			stocks    string
			startDate sql.NullString
			metrics   []byte
			errMsg    sql.NullString
		)
		if err := rows.Scan(&a.ID, &stocks, &a.Period, &startDate, &metrics, &errMsg, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis log: %w", err)
		}
		if stocks != "" {
			a.Stocks = strings.Split(stocks, ",")
		}
		if startDate.Valid {
			a.StartDate = &startDate.String
		}
		if len(metrics) > 0 {
			a.Metrics = json.RawMessage(metrics)
		}
		if errMsg.Valid {
			a.Error = &errMsg.String
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analysis logs: %w", err)
	}
	return out, nil
}

func nullableJSON(v map[string]string) (interface{}, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// describe adds the SQLSTATE class to driver errors.
func describe(err error) error {
	if pqErr, ok := err.(*pq.Error); ok {
		return fmt.Errorf("%s (%s): %w", pqErr.Code.Name(), pqErr.Code, err)
	}
	return err
}

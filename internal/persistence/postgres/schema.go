package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Schema creates the audit tables and their lookup indexes. Every statement
// is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS api_logs (
	id               BIGSERIAL PRIMARY KEY,
	endpoint         VARCHAR(255) NOT NULL,
	method           VARCHAR(10)  NOT NULL,
	status_code      INTEGER      NOT NULL,
	response_time_ms DOUBLE PRECISION NOT NULL,
	request_params   JSONB,
	user_ip          VARCHAR(45),
	user_agent       TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_api_logs_created_at ON api_logs (created_at);
CREATE INDEX IF NOT EXISTS idx_api_logs_endpoint ON api_logs (endpoint);

CREATE TABLE IF NOT EXISTS portfolio_analysis_logs (
	id         BIGSERIAL PRIMARY KEY,
	stocks     VARCHAR(255) NOT NULL,
	period     VARCHAR(10)  NOT NULL,
	start_date VARCHAR(20),
	metrics    JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_portfolio_analysis_logs_created_at ON portfolio_analysis_logs (created_at);
`

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db *sqlx.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

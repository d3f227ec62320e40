package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sawpanic/portfolioapi/internal/application/portfolio"
	"github.com/sawpanic/portfolioapi/internal/net/ratelimit"
	"github.com/sawpanic/portfolioapi/internal/persistence"
)

const auditTimeout = 2 * time.Second

// AnalyzePortfolio handles GET /api/portfolio/analyze
func (h *Handlers) AnalyzePortfolio(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if h.limiter != nil {
		key := h.cfg.CallerKeyPrefix + ":" + ClientIP(r)
		d := h.limiter.IsAllowed(r.Context(), key, h.cfg.CallerLimit, h.cfg.CallerWindow)
		if !d.Allowed {
			secs := d.RetryAfterSeconds()
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			h.writeError(w, r, http.StatusTooManyRequests, "rate_limited",
				fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", secs))
			return
		}
	}

	tickers := ParseTickers(q.Get("stocks"))
	if len(tickers) == 0 {
		h.writeError(w, r, http.StatusBadRequest, "invalid_input", "At least one stock ticker is required")
		return
	}
	if len(tickers) > h.cfg.MaxTickers {
		h.writeError(w, r, http.StatusBadRequest, "invalid_input",
			fmt.Sprintf("Maximum %d stocks allowed", h.cfg.MaxTickers))
		return
	}

	period := q.Get("period")
	if period == "" {
		period = h.cfg.DefaultPeriod
	}
	if !h.periodAllowed(period) {
		h.writeError(w, r, http.StatusBadRequest, "invalid_input",
			fmt.Sprintf("Unsupported period %q", period))
		return
	}

	// A malformed start_date is logged and ignored by the engine.
	startDate := strings.TrimSpace(q.Get("start_date"))

	req := portfolio.Request{Tickers: tickers, Period: period, StartDate: startDate}
	result, err := h.engine.Analyze(r.Context(), req)
	h.recordAnalysis(r.Context(), req, result, err)
	if err != nil {
		status, code := StatusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Strs("stocks", tickers).Msg("Portfolio analysis failed")
		}
		h.writeError(w, r, status, code, messageFor(status, err))
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// ParseTickers splits a comma separated list, trimming, upper-casing and
// dropping blanks.
func ParseTickers(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// StatusFor maps an analysis error onto an HTTP status and error code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, portfolio.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, portfolio.ErrNoData), errors.Is(err, portfolio.ErrNoCommonDates):
		return http.StatusBadRequest, "no_data"
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		return http.StatusServiceUnavailable, "upstream_rate_limited"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func messageFor(status int, err error) string {
	switch status {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusServiceUnavailable:
		return "Market data is temporarily unavailable, please retry shortly"
	default:
		return "Portfolio analysis failed"
	}
}

func (h *Handlers) periodAllowed(p string) bool {
	if len(h.cfg.AllowedPeriods) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedPeriods {
		if p == allowed {
			return true
		}
	}
	return false
}

// recordAnalysis writes the analysis log. Sink errors are logged only.
func (h *Handlers) recordAnalysis(ctx context.Context, req portfolio.Request, res *portfolio.Result, err error) {
	entry := persistence.AnalysisLog{
		Stocks:    req.Tickers,
		Period:    req.Period,
		CreatedAt: time.Now().UTC(),
	}
	if req.StartDate != "" {
		sd := req.StartDate
		entry.StartDate = &sd
	}
	if err != nil {
		msg := err.Error()
		entry.Error = &msg
	} else if res != nil {
		if raw, mErr := json.Marshal(res.Metrics); mErr == nil {
			entry.Metrics = raw
		}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if aErr := h.audit.RecordAnalysis(ctx, entry); aErr != nil {
		h.log.Warn().Err(aErr).Msg("Failed to record analysis log")
	}
}

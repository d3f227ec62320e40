package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const checkTimeout = 2 * time.Second

// Root handles GET /
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, RootResponse{
		Service: "portfolioapi",
		Version: h.cfg.Version,
		Status:  "running",
	})
}

// Health handles GET /health. Store failures degrade the status but the
// service keeps answering, since the limiter and cache fail open.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Checks: map[string]CheckResult{
			"redis":    h.checkRedis(r.Context()),
			"database": h.checkDatabase(r.Context()),
			"provider": h.checkProvider(),
		},
	}
	for _, c := range resp.Checks {
		if c.Status == "fail" {
			resp.Status = "degraded"
		}
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) checkRedis(ctx context.Context) CheckResult {
	if h.redis == nil {
		return CheckResult{Status: "disabled", Message: "in-process stores"}
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	if err := h.redis.Ping(ctx).Err(); err != nil {
		h.log.Warn().Err(err).Msg("Redis health check failed")
		return CheckResult{Status: "fail", Message: err.Error(), LatencyMS: time.Since(start).Milliseconds()}
	}
	return CheckResult{Status: "pass", LatencyMS: time.Since(start).Milliseconds()}
}

func (h *Handlers) checkDatabase(ctx context.Context) CheckResult {
	if h.db == nil {
		return CheckResult{Status: "disabled", Message: "in-memory audit log"}
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	hc := h.db.Check(ctx)
	res := CheckResult{Status: "pass", LatencyMS: hc.ResponseTimeMS}
	if !hc.Healthy {
		res.Status = "fail"
	}
	if len(hc.Errors) > 0 {
		res.Message = hc.Errors[0]
	}
	return res
}

func (h *Handlers) checkProvider() CheckResult {
	if h.market == nil {
		return CheckResult{Status: "disabled"}
	}

	hl := h.market.Health()
	msg := fmt.Sprintf("breaker %s, %d requests, %d failed, %d retried",
		hl.Breaker, hl.TotalRequests, hl.FailedRequests, hl.RetriedRequests)
	if hl.Breaker == "open" {
		return CheckResult{Status: "fail", Message: msg}
	}
	return CheckResult{Status: "pass", Message: msg}
}

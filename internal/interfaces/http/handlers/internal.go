package handlers

import (
	"crypto/subtle"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/sawpanic/portfolioapi/internal/persistence"
)

// InternalOnly restricts next to callers presenting the internal API key or
// connecting from a loopback or private address.
func (h *Handlers) InternalOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.internalAllowed(r) {
			next.ServeHTTP(w, r)
			return
		}
		h.log.Warn().Str("client_ip", ClientIP(r)).Str("path", r.URL.Path).Msg("Rejected internal endpoint access")
		h.writeError(w, r, http.StatusForbidden, "forbidden", "Internal endpoint")
	})
}

func (h *Handlers) internalAllowed(r *http.Request) bool {
	if key := h.cfg.InternalAPIKey; key != "" {
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("X-API-Key")), []byte(key)) == 1 {
			return true
		}
	}
	addr, err := netip.ParseAddr(ClientIP(r))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate()
}

// APIMetrics handles GET /api/internal/api-metrics
func (h *Handlers) APIMetrics(w http.ResponseWriter, r *http.Request) {
	hours := intParam(r, "hours", 24, 1, 24*30)

	stats, err := h.audit.APIStats(r.Context(), time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to aggregate API logs")
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load API metrics")
		return
	}
	stats.Finalize()

	h.writeJSON(w, http.StatusOK, APIMetricsResponse{APIStats: stats, PeriodHours: hours})
}

// PopularStocks handles GET /api/internal/popular-stocks
func (h *Handlers) PopularStocks(w http.ResponseWriter, r *http.Request) {
	days := intParam(r, "days", 30, 1, 365)
	limit := intParam(r, "limit", 10, 1, 100)

	counts, err := h.audit.PopularTickers(r.Context(), time.Now().AddDate(0, 0, -days), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count popular stocks")
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load popular stocks")
		return
	}

	if counts == nil {
		counts = []persistence.TickerCount{}
	}
	h.writeJSON(w, http.StatusOK, PopularStocksResponse{PopularStocks: counts, PeriodDays: days})
}

// RecentAnalyses handles GET /api/internal/analyses
func (h *Handlers) RecentAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 50, 1, 500)

	rows, err := h.audit.RecentAnalyses(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load analyses")
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load analyses")
		return
	}

	if rows == nil {
		rows = []persistence.AnalysisLog{}
	}
	h.writeJSON(w, http.StatusOK, AnalysesResponse{Analyses: rows, Count: len(rows)})
}

// intParam parses a positive integer query parameter, falling back to def
// and clamping to [lo, hi].
func intParam(r *http.Request, name string, def, lo, hi int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

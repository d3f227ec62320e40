package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/portfolioapi/internal/application/portfolio"
	"github.com/sawpanic/portfolioapi/internal/net/ratelimit"
	"github.com/sawpanic/portfolioapi/internal/persistence"
	"github.com/sawpanic/portfolioapi/internal/providers/yahoo"
)

// Analyzer runs portfolio analyses.
type Analyzer interface {
	Analyze(ctx context.Context, req portfolio.Request) (*portfolio.Result, error)
}

// CallerLimiter admits or rejects one caller request.
type CallerLimiter interface {
	IsAllowed(ctx context.Context, key string, maxRequests int, window time.Duration) ratelimit.Decision
}

// StoreChecker reports the health of a backing store.
type StoreChecker interface {
	Check(ctx context.Context) persistence.HealthCheck
}

// UpstreamReporter exposes market data client health.
type UpstreamReporter interface {
	Health() yahoo.Health
}

// Config holds handler settings.
type Config struct {
	Version        string
	DefaultPeriod  string
	AllowedPeriods []string
	MaxTickers     int

	CallerKeyPrefix string
	CallerLimit     int
	CallerWindow    time.Duration

	// InternalAPIKey unlocks /api/internal from non-private addresses.
	// Empty means private and loopback callers only.
	InternalAPIKey string
}

// Deps are the collaborators behind the handlers. Limiter, Redis, Database
// and Upstream may be nil.
type Deps struct {
	Engine   Analyzer
	Limiter  CallerLimiter
	Audit    persistence.AuditRepo
	Redis    redis.Cmdable
	Database StoreChecker
	Upstream UpstreamReporter
	Logger   *zerolog.Logger
}

// Handlers manages all HTTP endpoint handlers
type Handlers struct {
	cfg     Config
	engine  Analyzer
	limiter CallerLimiter
	audit   persistence.AuditRepo
	redis   redis.Cmdable
	db      StoreChecker
	market  UpstreamReporter
	started time.Time
	log     zerolog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(cfg Config, deps Deps) *Handlers {
	if cfg.MaxTickers <= 0 {
		cfg.MaxTickers = 5
	}
	if cfg.DefaultPeriod == "" {
		cfg.DefaultPeriod = portfolio.DefaultConfig().DefaultPeriod
	}
	if deps.Audit == nil {
		deps.Audit = persistence.NewMemoryAudit(0)
	}

	logger := log.With().Str("component", "http").Logger()
	if deps.Logger != nil {
		logger = *deps.Logger
	}

	return &Handlers{
		cfg:     cfg,
		engine:  deps.Engine,
		limiter: deps.Limiter,
		audit:   deps.Audit,
		redis:   deps.Redis,
		db:      deps.Database,
		market:  deps.Upstream,
		started: time.Now(),
		log:     logger,
	}
}

// Audit returns the sink request logs are written to.
func (h *Handlers) Audit() persistence.AuditRepo {
	return h.audit
}

type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID stores the request id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the id set by WithRequestID, or "unknown".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id
	}
	return "unknown"
}

// ClientIP returns the caller address without port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSON writes JSON response with proper error handling
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes standardized error response
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: RequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// NotFound handles 404 responses
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}

// MethodNotAllowed handles 405 responses
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
		"Method "+r.Method+" is not supported on this endpoint")
}

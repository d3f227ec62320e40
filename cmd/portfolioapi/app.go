package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/portfolioapi/internal/application/portfolio"
	"github.com/sawpanic/portfolioapi/internal/config"
	"github.com/sawpanic/portfolioapi/internal/data/cache"
	"github.com/sawpanic/portfolioapi/internal/infrastructure/db"
	"github.com/sawpanic/portfolioapi/internal/infrastructure/httpclient"
	"github.com/sawpanic/portfolioapi/internal/metrics"
	"github.com/sawpanic/portfolioapi/internal/net/circuit"
	"github.com/sawpanic/portfolioapi/internal/net/ratelimit"
	"github.com/sawpanic/portfolioapi/internal/providers/yahoo"
	"github.com/sawpanic/portfolioapi/internal/secrets"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg     *config.Config
	metrics *metrics.Registry
	redis   *redis.Client // nil when Redis is disabled
	limiter *ratelimit.SlidingWindow
	cache   *cache.Cache
	db      *db.Manager
	engine  *portfolio.Engine
	market  *yahoo.Client

	closers []func() error
}

// newApp wires stores, the provider and the engine from cfg. An unreachable
// Redis is logged, not fatal: the limiter and cache fail open.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.NewRegistry()}
	redactor := secrets.NewRedactor()

	var (
		windowStore ratelimit.Store
		cacheStore  cache.Store
	)
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		if cfg.Redis.PoolSize > 0 {
			opts.PoolSize = cfg.Redis.PoolSize
		}
		a.redis = redis.NewClient(opts)
		a.closers = append(a.closers, a.redis.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Str("url", redactor.RedactString(cfg.Redis.URL)).Msg("Redis unreachable, rate limits and cache will fail open")
		} else {
			log.Info().Str("url", redactor.RedactString(cfg.Redis.URL)).Msg("Connected to Redis")
		}
		cancel()

		windowStore = ratelimit.NewRedisStore(a.redis)
		cacheStore = cache.NewRedisStore(a.redis)
	} else {
		log.Info().Msg("Redis disabled, using in-process stores")
		mem := cache.NewMemoryStore(time.Minute)
		a.closers = append(a.closers, func() error { mem.Close(); return nil })
		windowStore = ratelimit.NewMemoryStore()
		cacheStore = mem
	}

	a.limiter = ratelimit.NewSlidingWindow(windowStore, ratelimit.WithMetrics(a.metrics))
	a.cache = cache.New(cacheStore, a.metrics)

	dbm, err := db.NewManager(cfg.Database)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("database: %s", redactor.RedactString(err.Error()))
	}
	if cfg.Database.Enabled {
		log.Info().Str("dsn", redactor.RedactString(cfg.Database.DSN)).Msg("Audit log persisted to PostgreSQL")
	}
	a.db = dbm
	a.closers = append(a.closers, dbm.Close)

	pc := cfg.Provider
	poolCfg := httpclient.DefaultConfig()
	poolCfg.MaxConcurrency = pc.MaxConcurrency
	poolCfg.RequestTimeout = pc.RequestTimeout
	poolCfg.MaxRetries = pc.MaxRetries

	breakerCfg := circuit.DefaultConfig("yahoo")
	breakerCfg.FailureThreshold = pc.BreakerFailures
	if pc.BreakerOpenFor > 0 {
		breakerCfg.Timeout = pc.BreakerOpenFor
	}

	a.market = yahoo.NewClient(httpclient.NewClientPool(poolCfg),
		yahoo.WithBaseURL(pc.BaseURL),
		yahoo.WithBreaker(circuit.NewBreaker(breakerCfg)),
		yahoo.WithHostLimiter(ratelimit.NewHostLimiter(pc.HostRPS, pc.HostBurst)),
		yahoo.WithMetrics(a.metrics),
	)

	ac := cfg.Analysis
	a.engine = portfolio.NewEngine(portfolio.Config{
		BenchmarkTicker:      ac.Benchmark,
		DefaultPeriod:        ac.DefaultPeriod,
		ProviderBudgetKey:    pc.BudgetKey,
		ProviderBudgetLimit:  pc.BudgetLimit,
		ProviderBudgetWindow: pc.BudgetWindow,
		CachePrefix:          "portfolio_analysis",
		CacheTTL:             ac.CacheTTL,
		SyntheticFactor:      ac.SyntheticFactor,
	}, a.market, a.limiter, a.cache, a.metrics)

	return a, nil
}

// Close releases stores in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Error during close")
		}
	}
	a.closers = nil
}

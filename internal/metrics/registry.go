package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry holds all Prometheus metrics for the portfolio service.
// A nil *Registry is valid and records nothing, which keeps components usable
// in tests and one-shot CLI runs.
type Registry struct {
	reg *prometheus.Registry

	// HTTP boundary
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Cache outcomes by operation (get/set/delete) and outcome (hit/miss/stored/unavailable)
	CacheOps *prometheus.CounterVec

	// Sliding-window limiter decisions by key class and result
	LimiterDecisions *prometheus.CounterVec

	// Returns provider fetches
	ProviderFetches  *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec

	// Analysis pipeline
	Analyses           *prometheus.CounterVec
	AnalysisDuration   prometheus.Histogram
	SyntheticBenchmark prometheus.Counter
}

// NewRegistry creates a registry with Go and process collectors plus all
// service metrics registered on a private prometheus.Registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolioapi_http_requests_total",
				Help: "Total HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "status"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfolioapi_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"route", "method"},
		),

		CacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolioapi_cache_operations_total",
				Help: "Cache operations by operation and outcome",
			},
			[]string{"op", "outcome"},
		),

		LimiterDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolioapi_ratelimit_decisions_total",
				Help: "Sliding-window limiter decisions by scope and result",
			},
			[]string{"scope", "result"},
		),

		ProviderFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolioapi_provider_fetches_total",
				Help: "Returns provider fetches by provider and result",
			},
			[]string{"provider", "result"},
		),

		ProviderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfolioapi_provider_fetch_duration_seconds",
				Help:    "Returns provider fetch duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"provider"},
		),

		Analyses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolioapi_analyses_total",
				Help: "Portfolio analyses by result (computed, cached, failed)",
			},
			[]string{"result"},
		),

		AnalysisDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "portfolioapi_analysis_duration_seconds",
				Help:    "Duration of uncached portfolio analyses",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
			},
		),

		SyntheticBenchmark: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portfolioapi_synthetic_benchmark_total",
				Help: "Analyses that fell back to the synthetic benchmark",
			},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.HTTPRequests,
		r.HTTPDuration,
		r.CacheOps,
		r.LimiterDecisions,
		r.ProviderFetches,
		r.ProviderDuration,
		r.Analyses,
		r.AnalysisDuration,
		r.SyntheticBenchmark,
	)

	log.Debug().Msg("Prometheus metrics registry initialized")
	return r
}

// Gatherer exposes the underlying registry, mostly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// Handler returns the /metrics exposition handler.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) RecordHTTP(route, method, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequests.WithLabelValues(route, method, status).Inc()
	r.HTTPDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func (r *Registry) RecordCache(op, outcome string) {
	if r == nil {
		return
	}
	r.CacheOps.WithLabelValues(op, outcome).Inc()
}

func (r *Registry) RecordLimiter(scope, result string) {
	if r == nil {
		return
	}
	r.LimiterDecisions.WithLabelValues(scope, result).Inc()
}

func (r *Registry) RecordProviderFetch(provider, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.ProviderFetches.WithLabelValues(provider, result).Inc()
	r.ProviderDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordAnalysis counts an analysis outcome. Duration is only observed for
// computed results; cache hits would skew the histogram.
func (r *Registry) RecordAnalysis(result string, d time.Duration) {
	if r == nil {
		return
	}
	r.Analyses.WithLabelValues(result).Inc()
	if result == ResultComputed {
		r.AnalysisDuration.Observe(d.Seconds())
	}
}

func (r *Registry) RecordSyntheticBenchmark() {
	if r == nil {
		return
	}
	r.SyntheticBenchmark.Inc()
}

// Analysis results
const (
	ResultComputed = "computed"
	ResultCached   = "cached"
	ResultFailed   = "failed"
)

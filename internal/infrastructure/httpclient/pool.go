package httpclient

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ClientConfig struct {
	MaxConcurrency int
	RequestTimeout time.Duration
	JitterRange    [2]int // Min/max jitter in milliseconds
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	UserAgent      string
}

// DefaultConfig suits a single polite upstream.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		MaxConcurrency: 4,
		RequestTimeout: 15 * time.Second,
		JitterRange:    [2]int{0, 0},
		MaxRetries:     2,
		BackoffBase:    250 * time.Millisecond,
		BackoffMax:     4 * time.Second,
		UserAgent:      "Mozilla/5.0 (compatible; portfolioapi/1.0)",
	}
}

type ClientPool struct {
	config    ClientConfig
	semaphore chan struct{}
	client    *http.Client
	log       zerolog.Logger

	mu    sync.RWMutex
	stats ClientStats
}

type ClientStats struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	RetriedRequests int64
	TotalLatency    time.Duration
}

func NewClientPool(config ClientConfig) *ClientPool {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}
	return &ClientPool{
		config:    config,
		semaphore: make(chan struct{}, config.MaxConcurrency),
		client: &http.Client{
			Timeout: config.RequestTimeout,
		},
		log: log.With().Str("component", "httpclient").Logger(),
	}
}

// Do sends req with the concurrency cap, jitter and retries. Retryable
// statuses are retried until the last attempt, whose response is returned
// as-is for the caller to inspect.
func (cp *ClientPool) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	startTime := time.Now()

	select {
	case cp.semaphore <- struct{}{}:
		defer func() { <-cp.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if cp.config.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", cp.config.UserAgent)
	}

	if err := cp.applyJitter(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= cp.config.MaxRetries; attempt++ {
		if attempt > 0 {
			cp.record(func(s *ClientStats) { s.RetriedRequests++ })

			backoff := cp.calculateBackoff(attempt)
			cp.log.Debug().
				Dur("backoff", backoff).
				Int("attempt", attempt).
				Str("url", req.URL.Redacted()).
				Msg("Retrying HTTP request")

			if err := sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		resp, err := cp.client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			if isRetryableError(err) {
				continue
			}
			break
		}

		if isRetryableStatus(resp.StatusCode) && attempt < cp.config.MaxRetries {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
			continue
		}

		cp.record(func(s *ClientStats) {
			s.TotalRequests++
			s.SuccessRequests++
			s.TotalLatency += time.Since(startTime)
		})
		return resp, nil
	}

	cp.record(func(s *ClientStats) {
		s.TotalRequests++
		s.FailedRequests++
		s.TotalLatency += time.Since(startTime)
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return nil, lastErr
}

func (cp *ClientPool) applyJitter(ctx context.Context) error {
	if cp.config.JitterRange[0] >= cp.config.JitterRange[1] {
		return nil
	}

	lo, hi := cp.config.JitterRange[0], cp.config.JitterRange[1]
	jitter := time.Duration(rand.Intn(hi-lo)+lo) * time.Millisecond
	return sleep(ctx, jitter)
}

func (cp *ClientPool) calculateBackoff(attempt int) time.Duration {
	backoff := cp.config.BackoffBase * time.Duration(1<<uint(attempt-1))
	if cp.config.BackoffMax > 0 && backoff > cp.config.BackoffMax {
		backoff = cp.config.BackoffMax
	}

	// Up to 10% jitter
	jitter := time.Duration(rand.Float64() * 0.1 * float64(backoff))
	return backoff + jitter
}

func (cp *ClientPool) GetStats() ClientStats {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	return cp.stats
}

func (cp *ClientPool) record(fn func(*ClientStats)) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	fn(&cp.stats)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, retryable := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"network is unreachable",
		"eof",
	} {
		if strings.Contains(msg, retryable) {
			return true
		}
	}
	return false
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

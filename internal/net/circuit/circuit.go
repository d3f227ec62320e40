// Package circuit guards calls to flaky upstreams with a gobreaker circuit.
package circuit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the breaker rejects a call without running it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config represents circuit breaker configuration
type Config struct {
	Name             string
	FailureThreshold uint32        // consecutive failures that trip the breaker
	Interval         time.Duration // closed-state counter reset period
	Timeout          time.Duration // open duration before a half-open probe
	HalfOpenRequests uint32        // probes allowed while half-open
}

// DefaultConfig trips after 3 consecutive failures and probes after a minute.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 3,
		Interval:         60 * time.Second,
		Timeout:          60 * time.Second,
		HalfOpenRequests: 1,
	}
}

// Breaker wraps a gobreaker.CircuitBreaker with context-aware calls.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker from config.
func NewBreaker(config Config) *Breaker {
	threshold := config.FailureThreshold
	if threshold == 0 {
		threshold = 3
	}

	st := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.HalfOpenRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Caller cancellation says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

// Call runs fn if the breaker admits it. Rejections wrap ErrCircuitOpen.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", b.cb.Name(), ErrCircuitOpen)
	}
	return err
}

// State returns "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.cb.Name()
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/portfolioapi/internal/metrics"
)

// ErrLimitExceeded is returned by WaitIfNeeded when the window is still full
// after one wait. Callers must abort rather than loop.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed bool

	// Remaining admissions in the current window. Only meaningful when
	// Allowed and not Degraded.
	Remaining int

	// RetryAfter is the minimum wait until the oldest event leaves the
	// window. Only set when rejected.
	RetryAfter time.Duration

	// Degraded marks a fail-open admission: the store was unavailable and
	// the request was let through without enforcement.
	Degraded bool
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1, for
// Retry-After headers and user-facing messages.
func (d Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Window is the raw result of one atomic prune+count+conditional-record
// against a store.
type Window struct {
	Admitted bool
	Count    int       // events in the window before this attempt
	Oldest   time.Time // oldest event still in the window; zero if none
}

// Store keeps per-key windows of admitted event timestamps. Admit must be
// atomic per key: two concurrent callers may never both be admitted past
// limit.
type Store interface {
	Admit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, error)

	// Peek reports the window without recording anything. Admitted is
	// always false.
	Peek(ctx context.Context, key string, window time.Duration, now time.Time) (Window, error)
}

// Status is a read-only view of one key's window.
type Status struct {
	Key        string        `json:"key"`
	Used       int           `json:"used"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after"`
}

// SlidingWindow is a sliding-window admission controller shared by every
// caller of a Store.
type SlidingWindow struct {
	store   Store
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	metrics *metrics.Registry
	log     zerolog.Logger
}

// Option configures a SlidingWindow.
type Option func(*SlidingWindow)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *SlidingWindow) { s.now = now }
}

// WithSleeper overrides how WaitIfNeeded blocks.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *SlidingWindow) { s.sleep = sleep }
}

// WithMetrics records decisions on the given registry.
func WithMetrics(m *metrics.Registry) Option {
	return func(s *SlidingWindow) { s.metrics = m }
}

// NewSlidingWindow creates a limiter backed by store.
func NewSlidingWindow(store Store, opts ...Option) *SlidingWindow {
	s := &SlidingWindow{
		store: store,
		now:   time.Now,
		sleep: sleepContext,
		log:   log.With().Str("component", "ratelimit").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsAllowed checks key against maxRequests per window and records the event
// only when admitted. Store failures fail open with a Degraded decision; a
// done context is never admitted.
func (s *SlidingWindow) IsAllowed(ctx context.Context, key string, maxRequests int, window time.Duration) Decision {
	now := s.now()
	scope := scopeOf(key)

	w, err := s.store.Admit(ctx, key, maxRequests, window, now)
	if err != nil {
		if isContextErr(err) || ctx.Err() != nil {
			return Decision{Allowed: false}
		}
		s.log.Warn().Err(err).Str("key", key).Msg("Rate limiter store unavailable, failing open")
		s.metrics.RecordLimiter(scope, "degraded")
		return Decision{Allowed: true, Degraded: true}
	}

	if w.Admitted {
		s.metrics.RecordLimiter(scope, "allowed")
		return Decision{Allowed: true, Remaining: maxRequests - w.Count - 1}
	}

	s.metrics.RecordLimiter(scope, "rejected")
	retry := window
	if !w.Oldest.IsZero() {
		retry = window - now.Sub(w.Oldest)
		if retry < 0 {
			retry = 0
		}
	}
	return Decision{Allowed: false, RetryAfter: retry}
}

// WaitIfNeeded blocks for the indicated wait when key is over its limit, then
// retries exactly once. A second rejection returns ErrLimitExceeded; a done
// context returns ctx.Err().
func (s *SlidingWindow) WaitIfNeeded(ctx context.Context, key string, maxRequests int, window time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d := s.IsAllowed(ctx, key, maxRequests, window)
	if d.Allowed {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.log.Info().
		Str("key", key).
		Dur("wait", d.RetryAfter).
		Msg("Rate limit reached, waiting")

	if err := s.sleep(ctx, d.RetryAfter); err != nil {
		return err
	}

	if d = s.IsAllowed(ctx, key, maxRequests, window); !d.Allowed {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w for %s after waiting", ErrLimitExceeded, key)
	}
	return nil
}

// Status reports key's current usage without consuming a slot. Unlike
// IsAllowed, store errors are returned.
func (s *SlidingWindow) Status(ctx context.Context, key string, maxRequests int, window time.Duration) (Status, error) {
	now := s.now()
	w, err := s.store.Peek(ctx, key, window, now)
	if err != nil {
		return Status{}, err
	}

	st := Status{Key: key, Used: w.Count, Limit: maxRequests}
	if st.Remaining = maxRequests - w.Count; st.Remaining < 0 {
		st.Remaining = 0
	}
	if st.Remaining == 0 && !w.Oldest.IsZero() {
		if st.RetryAfter = window - now.Sub(w.Oldest); st.RetryAfter < 0 {
			st.RetryAfter = 0
		}
	}
	return st, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// scopeOf keeps metric cardinality bounded: "api:portfolio:analyze:10.0.0.1"
// is reported as "api".
func scopeOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

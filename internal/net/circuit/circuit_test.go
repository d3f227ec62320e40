package circuit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		Name:             "test",
		FailureThreshold: 3,
		Interval:         time.Minute,
		Timeout:          50 * time.Millisecond,
		HalfOpenRequests: 1,
	}
}

func TestBreaker_ClosedState(t *testing.T) {
	breaker := NewBreaker(testConfig())

	if breaker.Name() != "test" {
		t.Errorf("Expected breaker name test, got %s", breaker.Name())
	}
	if breaker.State() != "closed" {
		t.Errorf("Breaker should start in closed state, got %s", breaker.State())
	}

	err := breaker.Call(context.Background(), func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("Successful call should not error: %v", err)
	}

	if breaker.State() != "closed" {
		t.Errorf("Breaker should remain closed after success, got %s", breaker.State())
	}
}

func TestBreaker_OpenOnFailures(t *testing.T) {
	breaker := NewBreaker(testConfig())

	for i := 0; i < 3; i++ {
		err := breaker.Call(context.Background(), func(ctx context.Context) error {
			return errors.New("upstream 502")
		})
		if err == nil {
			t.Error("Failed call should return error")
		}
	}

	if breaker.State() != "open" {
		t.Fatalf("Breaker should be open after failures, got %s", breaker.State())
	}

	called := false
	err := breaker.Call(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Open breaker must not run the call")
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	breaker := NewBreaker(testConfig())

	for i := 0; i < 3; i++ {
		_ = breaker.Call(context.Background(), func(ctx context.Context) error {
			return errors.New("boom")
		})
	}

	time.Sleep(80 * time.Millisecond)

	if breaker.State() != "half-open" {
		t.Fatalf("Breaker should be half-open after timeout, got %s", breaker.State())
	}

	if err := breaker.Call(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("Probe should succeed: %v", err)
	}

	if breaker.State() != "closed" {
		t.Errorf("Breaker should close after successful probe, got %s", breaker.State())
	}
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	breaker := NewBreaker(testConfig())

	for i := 0; i < 5; i++ {
		_ = breaker.Call(context.Background(), func(ctx context.Context) error {
			return context.Canceled
		})
	}

	if breaker.State() != "closed" {
		t.Errorf("Cancellations should not open the breaker, got %s", breaker.State())
	}
}

func TestBreaker_DoneContext(t *testing.T) {
	breaker := NewBreaker(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := breaker.Call(ctx, func(ctx context.Context) error {
		t.Error("Call should not run with a done context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Threshold: 3})
	for range 2 {
		if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("err = %v", err)
		}
	}
	if b.Open() {
		t.Fatal("breaker opened below threshold")
	}
	// A success resets the failure count.
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("err = %v", err)
	}
	for range 2 {
		_ = b.Do(func() error { return errBoom })
	}
	if b.Open() {
		t.Fatal("failure count was not reset by the success")
	}
}

func TestBreakerOpensAndRejects(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Threshold: 3, Cooldown: time.Hour})
	for range 3 {
		_ = b.Do(func() error { return errBoom })
	}
	if !b.Open() {
		t.Fatal("breaker did not open at threshold")
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
	if called {
		t.Fatal("fn was called while the breaker was open")
	}
}

func TestBreakerProbeClosesOnSuccess(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Threshold: 1, Cooldown: 10 * time.Millisecond})
	_ = b.Do(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if b.Open() {
		t.Fatal("breaker still open after successful probe")
	}
}

func TestBreakerProbeReopensOnFailure(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Threshold: 1, Cooldown: 10 * time.Millisecond})
	_ = b.Do(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
	if !b.Open() {
		t.Fatal("breaker did not re-open after failed probe")
	}
}

func TestBreakerReset(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Hour})
	_ = b.Do(func() error { return errBoom })
	if !b.Open() {
		t.Fatal("breaker did not open")
	}
	b.Reset()
	if b.Open() {
		t.Fatal("breaker still open after Reset")
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("err = %v", err)
	}
}

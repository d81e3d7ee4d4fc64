package resilience

import (
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("service unavailable")

func TestClosedStateAllowsCalls(t *testing.T) {
	b := NewBreaker(3, time.Second, time.Minute)
	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}

func TestOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Second, time.Minute)

	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return errTest })
	}

	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestStaysClosedBelowThreshold(t *testing.T) {
	b := NewBreaker(3, time.Second, time.Minute)

	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errTest })
	}

	if b.State() != StateClosed {
		t.Fatalf("expected closed after 2 of 3 failures, got %v", b.State())
	}
}

func TestSingleProbeInHalfOpen(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second, time.Minute)
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		b.RecordFailure()
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	// Advance past the open duration: exactly one probe admitted.
	now = now.Add(2 * time.Second)
	if !b.Allow() {
		t.Fatal("expected first probe to be admitted")
	}
	if b.Allow() {
		t.Fatal("expected second concurrent probe to be rejected")
	}

	// Probe success closes the breaker.
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("expected closed after probe success, got %v", b.State())
	}
	if b.ConsecutiveFailures() != 0 {
		t.Fatalf("expected failure count reset, got %d", b.ConsecutiveFailures())
	}
}

func TestHalfOpenFailureDoublesTimeout(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, 30*time.Second, 5*time.Minute)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	b.RecordFailure()

	// First probe window after 30s.
	now = now.Add(30 * time.Second)
	if !b.Allow() {
		t.Fatal("expected probe after base timeout")
	}
	b.RecordFailure()

	// Failed probe doubles the open duration: 30s is no longer enough.
	now = now.Add(30 * time.Second)
	if b.Allow() {
		t.Fatal("expected rejection before doubled timeout elapses")
	}
	now = now.Add(30 * time.Second)
	if !b.Allow() {
		t.Fatal("expected probe after doubled timeout")
	}
}

func TestBackoffCappedAtMax(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Minute, 2*time.Minute)
	b.now = func() time.Time { return now }

	b.RecordFailure() // open, timeout 1m
	for i := 0; i < 5; i++ {
		now = now.Add(10 * time.Minute)
		if !b.Allow() {
			t.Fatalf("expected probe on round %d", i)
		}
		b.RecordFailure()
	}

	if got := b.NextProbeAt().Sub(now); got != 2*time.Minute {
		t.Fatalf("expected backoff capped at 2m, got %v", got)
	}
}

func TestSuccessResetsBackoff(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Second, time.Minute)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(2 * time.Second)
	if !b.Allow() {
		t.Fatal("expected probe")
	}
	b.RecordFailure() // timeout now 2s

	now = now.Add(3 * time.Second)
	if !b.Allow() {
		t.Fatal("expected probe")
	}
	b.RecordSuccess()

	// After success the breaker trips with the base timeout again.
	b.RecordFailure()
	if got := b.NextProbeAt().Sub(now); got != time.Second {
		t.Fatalf("expected base timeout after success reset, got %v", got)
	}
}

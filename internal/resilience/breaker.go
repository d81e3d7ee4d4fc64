// Package resilience provides reliability patterns for participant dispatch.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the externally visible breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker implements a per-participant circuit breaker. It tracks consecutive
// failures and opens after maxFailures; while open all calls are rejected
// until the open duration elapses, at which point exactly one probe call is
// admitted (half-open). A failed probe reopens the breaker with the open
// duration doubled, capped at maxTimeout.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
	baseTimeout time.Duration
	maxTimeout  time.Duration
	timeout     time.Duration // current open duration (backoff)
	openedAt    time.Time
	probing     bool // a half-open probe is in flight
	now         func() time.Time
}

// NewBreaker creates a circuit breaker that opens after maxFailures
// consecutive failures. The open duration starts at timeout and doubles on
// repeated opens up to maxTimeout.
func NewBreaker(maxFailures int, timeout, maxTimeout time.Duration) *Breaker {
	if maxTimeout < timeout {
		maxTimeout = timeout
	}
	return &Breaker{
		maxFailures: maxFailures,
		baseTimeout: timeout,
		maxTimeout:  maxTimeout,
		timeout:     timeout,
		now:         time.Now,
	}
}

// Allow reports whether a call may proceed. In the half-open state only a
// single probe is admitted until its outcome is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.timeout {
			b.state = StateHalfOpen
			b.probing = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// RecordSuccess resets the failure count and closes the breaker. The open
// duration backoff resets to its base value.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	b.state = StateClosed
	b.timeout = b.baseTimeout
}

// RecordFailure counts a failure. The breaker opens when the threshold is
// reached or when a half-open probe fails; a failed probe doubles the open
// duration up to the cap.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	switch {
	case b.state == StateHalfOpen:
		b.timeout = min(b.timeout*2, b.maxTimeout)
		b.trip()
	case b.failures >= b.maxFailures:
		b.trip()
	}
}

// trip must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.probing = false
	b.openedAt = b.now()
}

// Execute runs fn if the breaker admits the call and records the outcome.
// Returns ErrCircuitOpen without calling fn when the circuit is open.
func (b *Breaker) Execute(fn func() error) error {
	if !b.Allow() {
		return ErrCircuitOpen
	}

	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}

	b.RecordSuccess()
	return nil
}

// State returns the current breaker state, applying the open → half-open
// timeout transition if it is due.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.timeout {
		b.state = StateHalfOpen
	}
	return b.state
}

// NextProbeAt returns when the next half-open probe becomes admissible.
// The zero time means the breaker is not open.
func (b *Breaker) NextProbeAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return time.Time{}
	}
	return b.openedAt.Add(b.timeout)
}

// ConsecutiveFailures returns the current consecutive failure count.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

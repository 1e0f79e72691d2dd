// Package breaker implements the per-peer outbound circuit breaker of
// spec.md §4.7: it trips after a run of sequential failures and, once
// tripped, lets exactly one probe through per back-off window.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker fails a call fast because it is
// tripped and no probe window has opened yet.
var ErrOpen = errors.New("breaker: open")

// ErrServerBusy marks the one failure kind that must not count toward
// tripping the breaker (spec.md §7); callers pass it through Call's
// error so the breaker can recognize it without a type dependency.
var ErrServerBusy = errors.New("breaker: server busy")

// Breaker gates calls to a single downstream peer.
//
// The failure counter is capped at maxRetry rather than growing without
// bound, per spec.md §9's open question. Once capped, the breaker
// behaves identically whether the peer has been down for a second or a
// week: admit() compares time.Since(lastAttempt) against backOff and
// lets exactly one probe through once the window has elapsed.
type Breaker struct {
	maxRetry int
	backOff  time.Duration

	mu          sync.Mutex
	failures    int
	lastAttempt time.Time
}

// New constructs a Breaker that trips after maxRetry sequential
// non-excluded failures and probes at most once per backOff while open.
func New(maxRetry int, backOff time.Duration) *Breaker {
	return &Breaker{maxRetry: maxRetry, backOff: backOff}
}

// Call runs fn unless the breaker is open and no probe window is
// available, in which case it returns ErrOpen without invoking fn. A
// successful fn call resets the failure counter; a failing call
// increments it unless the error is ErrServerBusy.
func (b *Breaker) Call(fn func() error) error {
	if !b.admit() {
		return ErrOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastAttempt = time.Now()
	switch {
	case err == nil:
		b.failures = 0
	case errors.Is(err, ErrServerBusy):
		// excluded from failure counting per spec.md §7
	default:
		b.failures++
		if b.failures > b.maxRetry {
			b.failures = b.maxRetry
		}
	}
	return err
}

// admit reports whether a call may proceed: always when the breaker is
// closed, and at most once per back-off window while tripped. The very
// first call after tripping fails fast too, since lastAttempt already
// holds the timestamp of the failure that caused the trip.
func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.maxRetry {
		return true
	}
	if time.Since(b.lastAttempt) < b.backOff {
		return false
	}
	// Reserve the single probe slot immediately so concurrent callers
	// racing admit() don't all pass through before Call records a result.
	b.lastAttempt = time.Now()
	return true
}

// Tripped reports whether the breaker is currently counted as open,
// ignoring probe timing. Useful for tests and diagnostics.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= b.maxRetry
}

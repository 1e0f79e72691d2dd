// Package retry implements a bounded retry loop with back-off and an
// error-kind whitelist, per spec.md §4.4.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted wraps the last error once the retry budget is spent.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Context is threaded through each attempt of Do.
type Context struct {
	// AttemptCount starts at 0 for the first attempt.
	AttemptCount int
	// LastError is the error from the previous attempt, nil on the first.
	LastError error
	// Exhausted lets fn signal an early, non-retryable abort.
	Exhausted bool
}

// IsRetryable reports whether err matches one of the policy's
// retryableTypes via errors.Is.
type IsRetryable func(err error) bool

// Policy configures the retry loop.
type Policy struct {
	MaxAttempts int
	BackOff     time.Duration
	Retryable   IsRetryable
}

// Do invokes fn, retrying according to p until fn succeeds, fn reports a
// non-retryable error, rc.Exhausted is set, or the attempt budget runs
// out. On budget exhaustion it returns an error wrapping the last cause
// via ErrExhausted.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, rc *Context) error) error {
	rc := &Context{}
	for {
		err := fn(ctx, rc)
		if err == nil {
			return nil
		}
		rc.LastError = err

		if rc.Exhausted {
			return fmt.Errorf("%w: %w", ErrExhausted, err)
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if rc.AttemptCount >= p.MaxAttempts {
			return fmt.Errorf("%w: %w", ErrExhausted, err)
		}

		if p.BackOff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.BackOff):
			}
		}
		rc.AttemptCount++
	}
}

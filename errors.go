package mycache

import (
	"errors"
	"fmt"
)

// Error kinds form a closed taxonomy (spec.md §7): every failure this
// module raises itself maps to exactly one of these sentinels, checked
// with errors.Is across the retry/breaker/transport boundary. Errors
// returned by a Getter reach the caller of a local load unchanged.
var (
	// ErrGroupNotFound is returned by a peer that has no such group
	// registered under (groupName, selfEndpoint).
	ErrGroupNotFound = errors.New("mycache: group not found")

	// ErrServerBusy is returned when the owner's admission limiter has
	// no free permit. Excluded from circuit-breaker failure counting.
	ErrServerBusy = errors.New("mycache: server busy")

	// ErrInternal covers any unhandled server-side failure.
	ErrInternal = errors.New("mycache: internal server error")

	// ErrConnectFailure means the transport could not reach the peer.
	ErrConnectFailure = errors.New("mycache: connect failure")

	// ErrBreakerOpen is returned when the local circuit breaker refuses
	// a call without attempting it.
	ErrBreakerOpen = errors.New("mycache: breaker open")

	// ErrExhaustedRetry means the retry engine gave up across all
	// whitelisted attempts.
	ErrExhaustedRetry = errors.New("mycache: retry exhausted")

	// ErrValidationFailed means the entry validator rejected a payload
	// after it was fully written.
	ErrValidationFailed = errors.New("mycache: validation failed")

	// ErrCancelled wraps caller-initiated cancellation.
	ErrCancelled = errors.New("mycache: cancelled")
)

// retryable is the whitelist consulted by the group orchestrator's
// retry policy (spec.md §4.9, §7): these four kinds may be retried
// against the next replica; everything else short-circuits.
func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrInternal),
		errors.Is(err, ErrServerBusy),
		errors.Is(err, ErrGroupNotFound),
		errors.Is(err, ErrConnectFailure):
		return true
	default:
		return false
	}
}

func wrapf(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

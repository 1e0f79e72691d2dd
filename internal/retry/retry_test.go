package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errRetryable = errors.New("retryable")
var errFatal = errors.New("fatal")

func alwaysRetryable(err error) bool { return errors.Is(err, errRetryable) }

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3}, func(ctx context.Context, rc *Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestDoRetriesUpToMax(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 2, Retryable: alwaysRetryable}, func(ctx context.Context, rc *Context) error {
		calls++
		return errRetryable
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3 (1 initial + 2 retries)", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 5, Retryable: alwaysRetryable}, func(ctx context.Context, rc *Context) error {
		calls++
		return errFatal
	})
	if !errors.Is(err, errFatal) {
		t.Fatalf("expected errFatal, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoHonorsExhaustedFlag(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 5, Retryable: alwaysRetryable}, func(ctx context.Context, rc *Context) error {
		calls++
		rc.Exhausted = true
		return errRetryable
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, Policy{MaxAttempts: 3, BackOff: time.Second, Retryable: alwaysRetryable}, func(ctx context.Context, rc *Context) error {
		return errRetryable
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

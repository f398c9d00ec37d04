package fetcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dealermetrics/carmatch/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

func TestRetryPolicySucceedsEventually(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond, testLogger)

	calls := 0
	err := policy.Do(context.Background(), "flaky", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicyStopsOnNonRetryable(t *testing.T) {
	policy := NewRetryPolicy(5, time.Millisecond, testLogger)

	fatal := &types.FetchError{URL: "http://x", StatusCode: 404, Err: errors.New("not found"), Retryable: false}
	calls := 0
	err := policy.Do(context.Background(), "fatal", func(ctx context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected the typed error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicyExhaustion(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond, testLogger)

	calls := 0
	err := policy.Do(context.Background(), "hopeless", func(ctx context.Context) error {
		calls++
		return errors.New("still broken")
	})
	if !errors.Is(err, types.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicyHonorsRetryAfter(t *testing.T) {
	policy := NewRetryPolicy(2, time.Millisecond, testLogger)

	hinted := &types.FetchError{
		URL:        "http://x",
		StatusCode: 429,
		Err:        errors.New("rate limited"),
		Retryable:  true,
		RetryAfter: 30 * time.Millisecond,
	}
	calls := 0
	start := time.Now()
	err := policy.Do(context.Background(), "limited", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return hinted
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("waited %v, expected at least the Retry-After hint", elapsed)
	}
}

func TestRetryPolicyRespectsContext(t *testing.T) {
	policy := NewRetryPolicy(10, 50*time.Millisecond, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := policy.Do(ctx, "cancelled", func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicyContextErrorNotRetried(t *testing.T) {
	policy := NewRetryPolicy(5, time.Millisecond, testLogger)

	calls := 0
	err := policy.Do(context.Background(), "deadline", func(ctx context.Context) error {
		calls++
		return context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithJitterBounds(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		got := withJitter(base)
		if got < 75*time.Millisecond || got > 125*time.Millisecond {
			t.Fatalf("withJitter(%v) = %v, outside the 25%% band", base, got)
		}
	}
}

package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/dealermetrics/carmatch/internal/types"
)

// RetryPolicy retries a unit of work with exponential backoff. The unit is
// deliberately opaque: the pipeline wraps fetch+extract+score for one query
// in a single attempt, because scraping intermediaries fail in ways only
// visible after extraction (empty or challenge pages with status 200).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	logger      *slog.Logger
}

// NewRetryPolicy creates a retry policy. Zero values fall back to 5
// attempts with a 5 second base delay.
func NewRetryPolicy(maxAttempts int, baseDelay time.Duration, logger *slog.Logger) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	if baseDelay <= 0 {
		baseDelay = 5 * time.Second
	}
	return &RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		logger:      logger.With("component", "retry"),
	}
}

// Do runs fn until it succeeds, a non-retryable error occurs, the context
// is cancelled, or attempts run out. Backoff doubles per attempt with ±25%
// jitter; a FetchError's RetryAfter hint overrides the computed delay.
func (p *RetryPolicy) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := p.BaseDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := withJitter(delay)
		var fe *types.FetchError
		if errors.As(lastErr, &fe) && fe.RetryAfter > 0 {
			wait = fe.RetryAfter
		}

		p.logger.Warn("attempt failed, backing off",
			"label", label,
			"attempt", attempt,
			"wait", wait,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}

	return fmt.Errorf("%w after %d attempts: %v", types.ErrRetriesExhausted, p.MaxAttempts, lastErr)
}

// isRetryable decides whether an error warrants another attempt. Typed
// fetch errors carry their own verdict; everything else is presumed
// transient except context cancellation.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fe *types.FetchError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return true
}

// withJitter spreads a delay ±25% to avoid thundering retries against the
// same intermediary.
func withJitter(base time.Duration) time.Duration {
	jitter := float64(base) * 0.25
	return base + time.Duration(rand.Float64()*2*jitter-jitter)
}

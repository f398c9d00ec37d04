package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrRetriesExhausted = errors.New("retry attempts exhausted")
	ErrEmptyContent     = errors.New("empty page content")
	ErrEmptyVocabulary  = errors.New("vocabulary fetch returned no values")
	ErrUnknownSite      = errors.New("no integration registered for site")
	ErrRunStopped       = errors.New("run has been stopped")
	ErrNoVehicles       = errors.New("ingestion produced no vehicles")
	ErrVehicleNotFound  = errors.New("vehicle id not present in source file")
)

// FetchError wraps errors that occur while obtaining a page or payload.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool

	// SessionExpired marks anti-bot/credential expiry responses. These are
	// retryable and additionally eligible for credential refresh.
	SessionExpired bool

	// RetryAfter is populated from a Retry-After header on HTTP 429.
	RetryAfter time.Duration
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// PlanError wraps failures during filter planning (vocabulary fetch plus
// LLM mapping). It carries the site so the per-vehicle boundary can log
// which integration degraded.
type PlanError struct {
	Site string
	Err  error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("plan error for site %q: %v", e.Site, e.Err)
}

func (e *PlanError) Unwrap() error { return e.Err }

// ExtractError wraps failures turning a fetched page into candidates.
type ExtractError struct {
	Site     string
	Selector string
	Err      error
}

func (e *ExtractError) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("extract error for site %q (selector=%q): %v", e.Site, e.Selector, e.Err)
	}
	return fmt.Sprintf("extract error for site %q: %v", e.Site, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// StorageError wraps persistence failures.
type StorageError struct {
	Backend string
	Table   string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s/%s): %v", e.Backend, e.Table, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

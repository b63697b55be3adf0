package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound reports that a requested item does not exist (or belongs to a
// different user, which callers cannot distinguish).
var ErrNotFound = errors.New("item not found")

// ExtractionError reports that content extraction found nothing usable at a
// URL, or that fetching the page failed. Terminal for the ingestion attempt.
type ExtractionError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed for %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed for %s: %s", e.URL, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ProviderError reports that an external provider rejected a request.
// Transient marks failures (rate limits, 5xx) worth retrying with backoff.
type ProviderError struct {
	Provider  string
	Op        string
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ProviderTimeoutError reports that a provider call exceeded its bounded
// wait. Kept distinct from ProviderError so the pipeline can apply
// retry-with-backoff specifically to timeouts.
type ProviderTimeoutError struct {
	Provider string
	Op       string
	Timeout  time.Duration
}

func (e *ProviderTimeoutError) Error() string {
	return fmt.Sprintf("%s %s timed out after %s", e.Provider, e.Op, e.Timeout)
}

// InsufficientDataError reports that an analysis was requested over too few
// points for the chosen algorithm or parameters.
type InsufficientDataError struct {
	Op   string
	Need int
	Got  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s requires at least %d items, got %d", e.Op, e.Need, e.Got)
}

// ConflictError reports a duplicate (user, url) or (user, canonical_url)
// submission.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("item already exists for %s %q", e.Field, e.Value)
}

// ValidationError reports an out-of-range or malformed parameter.
type ValidationError struct {
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

// IsRetryable reports whether an error should be retried with backoff:
// provider timeouts and transient provider failures only.
func IsRetryable(err error) bool {
	var timeout *ProviderTimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	var provider *ProviderError
	if errors.As(err, &provider) {
		return provider.Transient
	}
	return false
}

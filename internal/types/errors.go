package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout          = errors.New("request timed out")
	ErrMaxRetries       = errors.New("max retries exceeded")
	ErrEmptyResponse    = errors.New("empty response body")
	ErrInvalidURL       = errors.New("invalid URL")
	ErrStructureMissing = errors.New("expected element missing from markup")
	ErrNoFetcher        = errors.New("no fetcher available for request")
	ErrBodyTooLarge     = errors.New("response body exceeds size limit")
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	Timeout    bool          // transport reported a timeout while the caller was still waiting
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// IsTimeout reports whether err is, or wraps, a FetchError caused by a timeout.
func IsTimeout(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Timeout
	}
	return errors.Is(err, ErrTimeout)
}

// ParseError wraps errors that occur during parsing.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors that occur in the record pipeline.
type PipelineError struct {
	Stage  string
	Record *BookRecord
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

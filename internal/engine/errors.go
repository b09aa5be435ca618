package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Permanent content-state errors. Never retried.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrAncillaryUnavailable = errors.New("ancillary content unavailable")
	ErrInvalidID            = errors.New("invalid resource id")
)

// StatusError wraps a non-2xx HTTP status code.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// transientError marks an error as retryable regardless of its concrete type.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable. Sources use it for provider-specific
// signals (quota, backend errors) that IsTransient cannot recognise.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// FetchFailure is the only error a Fetcher returns.
type FetchFailure struct {
	ID     ResourceID
	Reason string
	Err    error
}

func (f *FetchFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", f.ID, f.Reason, f.Err)
	}
	return fmt.Sprintf("fetch %s: %s", f.ID, f.Reason)
}

func (f *FetchFailure) Unwrap() error { return f.Err }

// NewFetchFailure wraps err with a reason derived from its class.
func NewFetchFailure(id ResourceID, err error) *FetchFailure {
	var ff *FetchFailure
	if errors.As(err, &ff) {
		return ff
	}
	reason := "primary metadata failed"
	switch {
	case errors.Is(err, ErrNotFound):
		reason = "not found"
	case errors.Is(err, ErrInvalidID):
		reason = "invalid id"
	case IsTransient(err):
		reason = "retries exhausted"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		reason = "canceled"
	}
	return &FetchFailure{ID: id, Reason: reason, Err: err}
}

// ConfigError reports an invalid pipeline request. Returned before any network activity.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsTransient returns true for errors worth retrying: retryable HTTP statuses,
// connection and DNS failures, timeouts and explicitly marked errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAncillaryUnavailable) || errors.Is(err, ErrInvalidID) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var te *transientError
	if errors.As(err, &te) {
		return true
	}

	var se *StatusError
	if errors.As(err, &se) {
		return IsRetryableStatus(se.StatusCode)
	}

	// Per-call timeouts surface as DeadlineExceeded from the child context.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	// net.Error includes OpError, so check after it.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// IsRetryableStatus returns true for HTTP status codes worth retrying.
func IsRetryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// StatusErr converts a response status into a classified error.
// 404 and 410 map to ErrNotFound.
func StatusErr(code int, body string) error {
	se := &StatusError{StatusCode: code, Body: body}
	switch code {
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: %v", ErrNotFound, se)
	}
	return se
}

package provider

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel kinds for provider errors.
var (
	ErrAuth        = errors.New("provider rejected credential")
	ErrRateLimited = errors.New("provider rate limited")
	ErrUnavailable = errors.New("provider unavailable")
	ErrBadResponse = errors.New("provider returned an unreadable response")
	// ErrHistoryTruncated means the page cap ended the walk before the
	// requested range was covered.
	ErrHistoryTruncated = errors.New("provider history truncated at page limit")
)

// StatusError is a non-2xx provider response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Wait       time.Duration // from Retry-After, zero when absent
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.Endpoint, e.StatusCode)
}

// Temporary reports whether retrying may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// RetryAfter returns the server wait hint.
func (e *StatusError) RetryAfter() time.Duration { return e.Wait }

func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrAuth
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode >= http.StatusInternalServerError:
		return ErrUnavailable
	default:
		return ErrBadResponse
	}
}

// transportError marks network failures as transient.
type transportError struct {
	endpoint string
	err      error
}

func (e *transportError) Error() string   { return fmt.Sprintf("%s: %v", e.endpoint, e.err) }
func (e *transportError) Temporary() bool { return true }
func (e *transportError) Unwrap() []error { return []error{ErrUnavailable, e.err} }

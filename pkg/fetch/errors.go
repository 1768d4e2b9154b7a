// Package fetch wraps single outbound requests to the provider API and
// normalizes every failure mode into one error shape before it crosses
// the package boundary.
package fetch

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a normalized provider error.
type Kind string

const (
	// KindNetwork covers transport failures and 5xx responses. Retryable.
	KindNetwork Kind = "network"

	// KindParse covers non-JSON or schema-violating bodies. Not retryable
	// without a provider-side fix.
	KindParse Kind = "parse"

	// KindAuth covers 401/403. The consumer should re-authenticate rather
	// than retry.
	KindAuth Kind = "auth"

	// KindRateLimited covers 429. Retryable after the delay carried in
	// RetryAfter when the provider supplied one.
	KindRateLimited Kind = "rate_limited"

	// KindUnknown is the catch-all. Always carries a non-empty message.
	KindUnknown Kind = "unknown"
)

// Common errors returned by this package.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during
	// a retry backoff wait.
	ErrContextCancelled = errors.New("context cancelled")
)

// Error is the normalized provider error. Raw transport errors, status
// codes, and response bodies never leave the adapter unexamined; they are
// folded into this shape instead.
type Error struct {
	Kind       Kind
	StatusCode int

	// Message is always non-empty and human-readable.
	Message string

	// RetryAfter is the provider-requested delay for rate-limited
	// responses; zero when the provider did not send one.
	RetryAfter time.Duration

	// Cause carries diagnostics: the wrapped transport error, or for parse
	// failures a snippet of the raw body. Never assumed to have any
	// particular shape by callers.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %s error (status %d): %s: %v",
			e.Kind, e.StatusCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider %s error (status %d): %s",
		e.Kind, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the caller may reasonably retry the request.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindRateLimited:
		return true
	default:
		return false
	}
}

// AsError extracts a *Error from err, normalizing foreign errors into
// KindUnknown so consumers always see the one shape.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	msg := err.Error()
	if msg == "" {
		msg = "unknown provider error"
	}
	return &Error{Kind: KindUnknown, Message: msg, Cause: err}
}

// classify maps an HTTP status to an error kind. Transport failures are
// classified at the call site (no response to inspect).
func classify(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimited
	case status >= 500:
		return KindNetwork
	default:
		return KindUnknown
	}
}

// Package apierrors defines the structured error types surfaced across the
// upstream client, onboarding handshake, and SSE parser, so callers can use
// errors.As instead of string-matching.
package apierrors

import (
	"fmt"
	"time"
)

// UpstreamError describes a non-2xx response returned by the Gemini
// endpoint, grounded on the teacher's statusErr{code,msg} pattern in
// internal/runtime/executor/gemini_executor.go.
type UpstreamError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("upstream error: status %d: %s", e.Status, e.Body)
}

// StatusCode exposes the HTTP status for callers that branch on it, per the
// teacher's interface{ StatusCode() int } convention used throughout
// sdk/api/handlers/handlers.go.
func (e *UpstreamError) StatusCode() int {
	if e == nil {
		return 0
	}
	return e.Status
}

// Retryable reports whether the status code is a transient one (429 or
// 5xx). The upstream client does not consult it: it retries only on 401.
func (e *UpstreamError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Status == 429 || e.Status >= 500
}

// OnboardingTimeoutError is returned when the onboardUser poll loop exhausts
// its attempt budget without observing a completed onboarding.
type OnboardingTimeoutError struct {
	Attempts int
	Interval time.Duration
}

// Error implements the error interface.
func (e *OnboardingTimeoutError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("onboarding timed out after %d attempts at %s intervals", e.Attempts, e.Interval)
}

// SSEParseError wraps a malformed SSE envelope encountered mid-stream. Per
// spec §4.2, a parse error on one envelope is logged and skipped, not fatal,
// so this type exists for the non-fatal logging path rather than to abort
// the stream.
type SSEParseError struct {
	Line string
	Err  error
}

// Error implements the error interface.
func (e *SSEParseError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("sse parse error: %v (line: %q)", e.Err, e.Line)
}

// Unwrap allows errors.Is/errors.As to reach the underlying decode error.
func (e *SSEParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// TransportError wraps a lower-level network/transport failure (dial,
// timeout, connection reset) encountered while talking to the upstream.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

// Unwrap allows errors.Is/errors.As to reach the underlying network error.
func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

package aether

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore     = errors.New("aether: no store configured")
	ErrStoreClosed = errors.New("aether: store closed")

	// Not found errors.
	ErrJobNotFound = errors.New("aether: job not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("aether: job already exists")

	// State errors.
	ErrJobFinalized   = errors.New("aether: job already in a terminal state")
	ErrJobNotRunning  = errors.New("aether: job is not running")
	ErrUnknownJobKind = errors.New("aether: no handler registered for job kind")
)

// Kind classifies a failure for retry eligibility and reporting.
type Kind string

const (
	// KindValidation marks malformed or missing job parameters. Rejected
	// at submission, never retried.
	KindValidation Kind = "validation"
	// KindTransient marks recoverable external failures: network errors,
	// timeouts, rate limits, exhausted quotas. Eligible for retry.
	KindTransient Kind = "transient"
	// KindPermanent marks non-recoverable external failures: invalid
	// arguments, permission denied, malformed responses. Never retried.
	KindPermanent Kind = "permanent"
	// KindSerialization marks payloads that cannot be encoded or decoded.
	// Treated as permanent.
	KindSerialization Kind = "serialization"
	// KindExhausted marks a job that failed after exhausting its retry
	// budget. The message carries the last transient error verbatim.
	KindExhausted Kind = "exhausted"
)

// Error is a structured failure description. Jobs record failures as an
// Error value rather than a bare string so callers can distinguish a quota
// blip from a bad argument.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Validationf creates a validation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Transientf creates a transient (retryable) error.
func Transientf(format string, args ...any) *Error {
	return &Error{Kind: KindTransient, Message: fmt.Sprintf(format, args...)}
}

// Permanentf creates a permanent (non-retryable) error.
func Permanentf(format string, args ...any) *Error {
	return &Error{Kind: KindPermanent, Message: fmt.Sprintf(format, args...)}
}

// Serializationf creates a serialization error.
func Serializationf(format string, args ...any) *Error {
	return &Error{Kind: KindSerialization, Message: fmt.Sprintf(format, args...)}
}

// Exhausted wraps the last transient error of a job whose retry budget
// ran out. The original message is preserved verbatim.
func Exhausted(last error) *Error {
	var ae *Error
	if errors.As(last, &ae) {
		return &Error{Kind: KindExhausted, Code: ae.Code, Message: ae.Message}
	}
	return &Error{Kind: KindExhausted, Message: last.Error()}
}

// WithCode returns a copy of the error carrying a machine-readable code
// (typically the upstream status or API error code).
func (e *Error) WithCode(code string) *Error {
	c := *e
	c.Code = code
	return &c
}

// KindOf classifies an arbitrary error. Structured errors report their own
// kind; context cancellation and deadline expiry are permanent (retrying a
// cancelled attempt cannot succeed); everything else defaults to transient,
// so unknown failures stay eligible for retry.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindPermanent
	}
	return KindTransient
}

// Retryable reports whether an error is eligible for retry.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

// AsError converts an arbitrary error into a structured Error, classifying
// it with KindOf when it is not already structured.
func AsError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: KindOf(err), Message: err.Error()}
}

// Package domain provides the wisdom types and canonical error taxonomy
// shared by the pipeline, providers, and consumer surfaces.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind represents the category of a generation failure.
type ErrorKind string

const (
	// ErrKindNotConfigured indicates no provider credential is present; no
	// call was attempted.
	ErrKindNotConfigured ErrorKind = "not_configured"

	// ErrKindRateLimited indicates the provider rejected the call on quota.
	ErrKindRateLimited ErrorKind = "rate_limited"

	// ErrKindNetwork indicates a transport failure before any HTTP status
	// was received.
	ErrKindNetwork ErrorKind = "network_failure"

	// ErrKindProvider indicates an upstream API error carrying a provider
	// message (5xx, malformed body, refusal).
	ErrKindProvider ErrorKind = "provider_error"

	// ErrKindTimeout indicates the bounded generation window elapsed.
	ErrKindTimeout ErrorKind = "timeout"

	// ErrKindConfig indicates a startup validation failure (empty corpus,
	// invalid provider settings). Never produced at request time.
	ErrKindConfig ErrorKind = "configuration"
)

// GenError represents a canonical generation failure that providers return
// and the pipeline resolves to a fallback outcome. Every kind except
// ErrKindConfig is recoverable by serving from the corpus.
type GenError struct {
	// Kind is the category of failure.
	Kind ErrorKind `json:"kind"`

	// Provider names the upstream that failed (empty for not_configured).
	Provider string `json:"provider,omitempty"`

	// Message is the human-readable failure description. Constructors never
	// place credentials in it, so it is safe to log and surface in stats.
	Message string `json:"message"`

	// StatusCode is the upstream HTTP status, when one was received.
	StatusCode int `json:"-"`

	// Err is the wrapped cause, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *GenError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *GenError) Unwrap() error { return e.Err }

// HTTPStatusCode returns the status a surface should use when it cannot
// absorb the failure into a fallback.
func (e *GenError) HTTPStatusCode() int {
	switch e.Kind {
	case ErrKindRateLimited:
		return http.StatusTooManyRequests
	case ErrKindTimeout:
		return http.StatusGatewayTimeout
	case ErrKindNetwork, ErrKindProvider:
		return http.StatusBadGateway
	case ErrKindNotConfigured, ErrKindConfig:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewGenError creates a new generation error.
func NewGenError(kind ErrorKind, message string) *GenError {
	return &GenError{Kind: kind, Message: message}
}

// WithProvider names the upstream the error came from.
func (e *GenError) WithProvider(name string) *GenError {
	e.Provider = name
	return e
}

// WithStatusCode records the upstream HTTP status.
func (e *GenError) WithStatusCode(code int) *GenError {
	e.StatusCode = code
	return e
}

// WithCause wraps the underlying error.
func (e *GenError) WithCause(err error) *GenError {
	e.Err = err
	return e
}

// Convenience constructors for common failures

// ErrNotConfigured signals generation is disabled for lack of a credential.
func ErrNotConfigured() *GenError {
	return NewGenError(ErrKindNotConfigured, "no generation provider configured")
}

// ErrRateLimited signals a provider quota rejection.
func ErrRateLimited(provider string) *GenError {
	return NewGenError(ErrKindRateLimited, "rate limit exceeded").
		WithProvider(provider).
		WithStatusCode(http.StatusTooManyRequests)
}

// ErrNetwork wraps a transport-level failure.
func ErrNetwork(provider string, err error) *GenError {
	return NewGenError(ErrKindNetwork, "request failed before a response was received").
		WithProvider(provider).
		WithCause(err)
}

// ErrProvider wraps an upstream API error message.
func ErrProvider(provider, message string) *GenError {
	return NewGenError(ErrKindProvider, message).WithProvider(provider)
}

// ErrTimeout signals the generation deadline elapsed.
func ErrTimeout(provider string, err error) *GenError {
	return NewGenError(ErrKindTimeout, "generation timed out").
		WithProvider(provider).
		WithCause(err)
}

// ErrConfig marks a startup validation failure.
func ErrConfig(message string) *GenError {
	return NewGenError(ErrKindConfig, message)
}

// KindOf extracts the error kind from err, unwrapping as needed.
// Unclassified errors report ErrKindProvider so callers always have a
// usable fallback reason.
func KindOf(err error) ErrorKind {
	var ge *GenError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ErrKindProvider
}

// IsRateLimited reports whether err is a provider quota rejection.
func IsRateLimited(err error) bool {
	return KindOf(err) == ErrKindRateLimited
}

// IsNotConfigured reports whether err means no credential is present.
func IsNotConfigured(err error) bool {
	return KindOf(err) == ErrKindNotConfigured
}

// IsTimeout reports whether err is a deadline failure.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

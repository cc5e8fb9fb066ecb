package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for each error kind.
// Use errors.Is() to check against these.
var (
	ErrNetwork          = errors.New("network")
	ErrRemoteValidation = errors.New("remote validation")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrStaleHandle      = errors.New("stale cart handle")
)

// ErrorKind classifies a RemoteError by how callers are expected to react.
type ErrorKind string

const (
	// KindNetwork: the request did not complete. Retryable by re-invoking the same operation.
	KindNetwork ErrorKind = "Network"
	// KindRemoteValidation: well-formed request rejected by business rules. Not retryable unmodified.
	KindRemoteValidation ErrorKind = "RemoteValidation"
	// KindUnauthorized: stored credential rejected or expired.
	KindUnauthorized ErrorKind = "Unauthorized"
	// KindStaleHandle: the cart identifier no longer names a live cart.
	KindStaleHandle ErrorKind = "StaleHandle"
)

// RemoteError is the only error type that crosses a public operation boundary.
// Implements error interface and supports unwrapping.
type RemoteError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code,omitempty"` // Backend error code when one was reported
	Message string    `json:"message"`        // Backend message, verbatim for validation errors

	// RetryAfter is a throttling hint from the backend. Zero when unknown.
	RetryAfter time.Duration `json:"-"`

	Err error `json:"-"` // Wrapped error, not serialized
}

func (e *RemoteError) Error() string {
	if e.Err != nil && !isSentinel(e.Err) {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Retryable reports whether re-invoking the same operation may succeed.
func (e *RemoteError) Retryable() bool {
	return e.Kind == KindNetwork
}

func isSentinel(err error) bool {
	return err == ErrNetwork || err == ErrRemoteValidation || err == ErrUnauthorized || err == ErrStaleHandle
}

// NewNetworkError creates an error for requests that did not complete.
func NewNetworkError(service string, err error) *RemoteError {
	return &RemoteError{
		Kind:    KindNetwork,
		Message: fmt.Sprintf("%s request failed", service),
		Err:     fmt.Errorf("%w: %v", ErrNetwork, err),
	}
}

// NewValidationError creates an error for input the backend rejected.
// message is kept verbatim so the UI can show it as-is.
func NewValidationError(code, message string) *RemoteError {
	if message == "" {
		message = "invalid request"
	}
	return &RemoteError{
		Kind:    KindRemoteValidation,
		Code:    code,
		Message: message,
		Err:     ErrRemoteValidation,
	}
}

// NewUnauthorizedError creates an error for rejected or expired credentials.
func NewUnauthorizedError(reason string) *RemoteError {
	return &RemoteError{
		Kind:    KindUnauthorized,
		Message: reason,
		Err:     ErrUnauthorized,
	}
}

// NewStaleHandleError creates an error for a cart handle the backend no longer knows.
func NewStaleHandleError(handle CartHandle) *RemoteError {
	return &RemoteError{
		Kind:    KindStaleHandle,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("cart %s not found", handle),
		Err:     ErrStaleHandle,
	}
}

// KindOf returns the kind of err, or "" when err is nil.
// Errors that are not RemoteErrors are reported as KindNetwork.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindNetwork
}

// Normalize converts any error into a RemoteError so raw transport errors
// never reach UI collaborators. Returns nil for nil.
func Normalize(err error) *RemoteError {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re
	}
	return &RemoteError{
		Kind:    KindNetwork,
		Message: "request failed",
		Err:     fmt.Errorf("%w: %v", ErrNetwork, err),
	}
}

// IsStaleHandle reports whether err says the cart handle is no longer valid.
// A validation error that names a missing cart counts as stale.
func IsStaleHandle(err error) bool {
	var re *RemoteError
	if !errors.As(err, &re) {
		return false
	}
	if re.Kind == KindStaleHandle {
		return true
	}
	if re.Kind != KindRemoteValidation {
		return false
	}
	msg := strings.ToLower(re.Message)
	return strings.Contains(msg, "cart") && mentionsMissing(msg) && !strings.Contains(msg, "line")
}

// IsLineNotFound reports whether err is a validation error about a missing cart line.
func IsLineNotFound(err error) bool {
	var re *RemoteError
	if !errors.As(err, &re) || re.Kind != KindRemoteValidation {
		return false
	}
	msg := strings.ToLower(re.Message)
	return strings.Contains(msg, "line") && mentionsMissing(msg)
}

// IsAlreadyExists reports whether err is a validation error for a duplicate record,
// e.g. a customer email that is already taken.
func IsAlreadyExists(err error) bool {
	var re *RemoteError
	if !errors.As(err, &re) || re.Kind != KindRemoteValidation {
		return false
	}
	if re.Code == "TAKEN" || re.Code == "ALREADY_EXISTS" {
		return true
	}
	msg := strings.ToLower(re.Message)
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "already been taken")
}

func mentionsMissing(msg string) bool {
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}

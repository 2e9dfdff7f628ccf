// Package errors classifies pipeline failures so callers can decide between
// retry, degrade, and hard stop. The taxonomy mirrors how the pollers and
// request handlers treat external systems: transient faults retry at the next
// tick, permanent faults are logged and surfaced sanitized, disabled features
// short-circuit without crashing.
package errors

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Kind classifies an error for retry and reporting decisions.
type Kind int

const (
	// KindTransient - retryable external faults (network, 5xx, rate limit).
	KindTransient Kind = iota
	// KindPermanent - non-retryable faults (auth, validation).
	KindPermanent
	// KindDisabled - feature toggle off while the feature was invoked.
	KindDisabled
	// KindConflict - domain conflicts (duplicate short-id, parent cycle).
	KindConflict
)

// TransientError represents an error that can be retried.
type TransientError struct {
	Err        error
	StatusCode int    // HTTP status code if applicable
	RetryAfter int    // Seconds to wait before retry (from Retry-After header)
	Message    string // sanitized, user-facing message
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError represents an error that should not be retried.
type PermanentError struct {
	Err        error
	StatusCode int
	Message    string
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// DisabledError is returned when a feature toggle gates the invoked component.
type DisabledError struct {
	Feature string
}

func (e *DisabledError) Error() string {
	return fmt.Sprintf("feature disabled: %s", e.Feature)
}

// ConflictError is a domain conflict rejected at the boundary with a
// user-visible reason (duplicate short-id, cycle in item hierarchy, ...).
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// LookupConflict is raised by the identity resolver when two user rows
// collide on different keys. Callers log and proceed with a synthetic user.
type LookupConflict struct {
	Key      string
	OtherKey string
}

func (e *LookupConflict) Error() string {
	return fmt.Sprintf("identity lookup conflict: %s vs %s", e.Key, e.OtherKey)
}

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Disabled returns a typed feature-disabled error.
func Disabled(feature string) error {
	return &DisabledError{Feature: feature}
}

// Conflict returns a typed domain-conflict error.
func Conflict(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}
	if IsDisabled(err) || IsConflict(err) {
		return false
	}
	if isNetworkError(err) || isSyscallError(err) {
		return true
	}
	if code := HTTPStatus(err); code > 0 {
		return isTransientHTTPStatus(code)
	}
	return false
}

// IsDisabled reports whether err is a feature-disabled error.
func IsDisabled(err error) bool {
	var de *DisabledError
	return errors.As(err, &de)
}

// IsConflict reports whether err is a domain conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// HTTPStatus extracts the HTTP status code carried by a wrapped error, or 0.
func HTTPStatus(err error) int {
	var transientErr *TransientError
	if errors.As(err, &transientErr) && transientErr.StatusCode > 0 {
		return transientErr.StatusCode
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) && permanentErr.StatusCode > 0 {
		return permanentErr.StatusCode
	}
	return 0
}

// FromHTTPStatus classifies an HTTP failure by status code.
func FromHTTPStatus(code int, err error) error {
	if isTransientHTTPStatus(code) {
		return &TransientError{Err: err, StatusCode: code}
	}
	return &PermanentError{Err: err, StatusCode: code}
}

// UserMessage returns a sanitized message safe for end users. It never
// contains stack traces, hostnames, or credential material.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case IsDisabled(err):
		return err.Error()
	case IsConflict(err):
		return err.Error()
	case IsTransient(err):
		return "The external service is temporarily unavailable. Please try again."
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "401"):
		return "Authentication with the external service failed. Please check credentials."
	case strings.Contains(lower, "not found"), strings.Contains(lower, "404"):
		return "The requested resource was not found."
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return "The request timed out. Please try again."
	default:
		return "The request could not be completed."
	}
}

func isTransientHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func isSyscallError(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ETIMEDOUT)
}

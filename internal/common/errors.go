// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Common application errors.
var (
	// Transport errors.
	ErrTransport    = errors.New("transport error")
	ErrCancelled    = errors.New("operation cancelled")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")

	// Review state errors. These are prevented at the interface level and never fatal.
	ErrOperationInFlight  = errors.New("an operation is already in flight")
	ErrNeedsClarification = errors.New("transaction needs clarification before approval")
	ErrAlreadyApproved    = errors.New("transaction is already approved")
	ErrNoClarification    = errors.New("transaction does not need clarification")
	ErrMissingField       = errors.New("required field is missing")
	ErrNoActiveSession    = errors.New("no active batch session")
	ErrSubSessionBusy     = errors.New("a clarification turn is already in flight")
	ErrSessionFinalized   = errors.New("batch session is already finalized")
	ErrUndecided          = errors.New("transaction still awaits a decision")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// APIError is an error reported by the backend in a response body.
// Its Message is shown to the reviewer verbatim.
type APIError struct {
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	return e.Message
}

// Is lets errors.Is match ErrUnauthorized, ErrNotFound and ErrRateLimit against status-coded
// API errors.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrRateLimit:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// Transport wraps a network-level failure.
func Transport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrCancelled) || errors.Is(err, ErrUnauthorized) {
		return false
	}

	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTransport) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError ||
			apiErr.StatusCode == http.StatusTooManyRequests
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}

// Package types defines error types
package types

import (
	"errors"
	"fmt"
	"time"
)

// Predefined errors
var (
	// ErrDuplicateRequest indicates an identical request was already in flight
	// under the DropIfDuplicated policy
	ErrDuplicateRequest = errors.New("duplicate request in flight")

	// ErrNilRequest indicates a stage was built without a request
	ErrNilRequest = errors.New("request is nil")

	// ErrNilResponse indicates a transport returned neither a response nor an error
	ErrNilResponse = errors.New("transport returned no response")

	// ErrTerminated indicates the upstream finished without producing a value
	ErrTerminated = errors.New("stage terminated without output")

	// ErrPoolClosed indicates the worker pool is closed
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrPoolFull indicates the worker pool queue is full
	ErrPoolFull = errors.New("worker pool is full")
)

// TransportError wraps an error produced by the transport for a request
type TransportError struct {
	Request *Request
	Cause   error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.Request, e.Cause)
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// AdaptFailure reports that an adapter decided to drop a failed request with a reason
type AdaptFailure struct {
	Reason  string
	Request *Request
	Cause   error
}

// Error implements the error interface
func (e *AdaptFailure) Error() string {
	return fmt.Sprintf("adapt dropped %s: %s (cause: %v)", e.Request, e.Reason, e.Cause)
}

// Unwrap returns the original failure
func (e *AdaptFailure) Unwrap() error {
	return e.Cause
}

// AdaptError reports that the adapter itself failed.
// Cause is the failure that triggered adaptation; it is nil for pre-flight adaptation.
type AdaptError struct {
	Err     error
	Request *Request
	Cause   error
}

// Error implements the error interface
func (e *AdaptError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("adapt failed for %s: %v", e.Request, e.Err)
	}
	return fmt.Sprintf("adapt failed for %s: %v (cause: %v)", e.Request, e.Err, e.Cause)
}

// Unwrap returns the adapter error and the original failure
func (e *AdaptError) Unwrap() []error {
	return joinCauses(e.Err, e.Cause)
}

// RetryFailure reports that a retrier decided to drop a failed request with a reason
type RetryFailure struct {
	Reason  string
	Request *Request
	Cause   error
}

// Error implements the error interface
func (e *RetryFailure) Error() string {
	return fmt.Sprintf("retry dropped %s: %s (cause: %v)", e.Request, e.Reason, e.Cause)
}

// Unwrap returns the original failure
func (e *RetryFailure) Unwrap() error {
	return e.Cause
}

// RetryError reports that the retrier itself failed while deciding
type RetryError struct {
	Err     error
	Request *Request
	Cause   error
}

// Error implements the error interface
func (e *RetryError) Error() string {
	return fmt.Sprintf("retry decision failed for %s: %v (cause: %v)", e.Request, e.Err, e.Cause)
}

// Unwrap returns the retrier error and the original failure
func (e *RetryError) Unwrap() []error {
	return joinCauses(e.Err, e.Cause)
}

// ValidationFailure reports that a validator rejected a response
type ValidationFailure struct {
	Reason   string
	Body     []byte
	Response *Response
}

// Error implements the error interface
func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// DecodeFailure reports that a response payload could not be decoded
type DecodeFailure struct {
	Body     []byte
	Response *Response
	Cause    error
}

// Error implements the error interface
func (e *DecodeFailure) Error() string {
	return fmt.Sprintf("decode failed: %v", e.Cause)
}

// Unwrap returns the decoder error
func (e *DecodeFailure) Unwrap() error {
	return e.Cause
}

// UnexpectedResponseError reports a transport result with an unexpected shape
type UnexpectedResponseError struct {
	Request *Request
}

// Error implements the error interface
func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response shape for %s", e.Request)
}

// Unwrap returns ErrNilResponse
func (e *UnexpectedResponseError) Unwrap() error {
	return ErrNilResponse
}

// RetryableError marks an error as retryable, optionally with a suggested delay
type RetryableError struct {
	// Err is the underlying error
	Err error

	// Retryable indicates whether the error is retryable
	Retryable bool

	// RetryAfter is the suggested retry delay
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error is marked retryable
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}
	return false
}

// GetRetryDelay returns the suggested retry delay
func GetRetryDelay(err error) time.Duration {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.RetryAfter
	}
	return 0
}

// StatusCode extracts the HTTP status code carried by err, looking through
// adapt and retry wrappers. The second result is false when no response is attached.
func StatusCode(err error) (int, bool) {
	var validation *ValidationFailure
	if errors.As(err, &validation) && validation.Response != nil {
		return validation.Response.StatusCode, true
	}
	var decode *DecodeFailure
	if errors.As(err, &decode) && decode.Response != nil {
		return decode.Response.StatusCode, true
	}
	return 0, false
}

func joinCauses(errs ...error) []error {
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

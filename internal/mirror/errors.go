package mirror

import (
	"errors"
	"fmt"
)

// Error represents a mirror-level failure.
//
// The taxonomy follows how the UI reacts:
//   - NOT_FOUND: bucket absent; drives a "create bucket" affordance
//   - TRANSPORT: connectivity or backend fault; cached entries stay readable
//   - VALIDATION: bad input rejected before any write was issued
//
// Stale watch events (replayed revisions, superseded epochs) are not
// errors; they are expected steady-state noise and are dropped silently.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Bucket identifies the affected bucket.
	Bucket string

	// Key identifies the affected key, when the failure is key-scoped.
	Key string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes mirror errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates the bucket does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeTransport indicates a connectivity or backend fault.
	ErrCodeTransport ErrorCode = "TRANSPORT"

	// ErrCodeValidation indicates input rejected at the call boundary.
	ErrCodeValidation ErrorCode = "VALIDATION"
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Bucket != "" && e.Key != "":
		return fmt.Sprintf("%s: %s (bucket=%s, key=%s)", e.Code, e.Message, e.Bucket, e.Key)
	case e.Bucket != "":
		return fmt.Sprintf("%s: %s (bucket=%s)", e.Code, e.Message, e.Bucket)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error is a bucket-not-found error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var me *Error
	return errors.As(err, &me) && me.Code == ErrCodeNotFound
}

// IsTransport returns true if the error is a transport error.
// Uses errors.As to handle wrapped errors.
func IsTransport(err error) bool {
	var me *Error
	return errors.As(err, &me) && me.Code == ErrCodeTransport
}

// IsValidation returns true if the error is a validation error.
// Uses errors.As to handle wrapped errors.
func IsValidation(err error) bool {
	var me *Error
	return errors.As(err, &me) && me.Code == ErrCodeValidation
}

func newNotFoundError(bucket string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: "bucket does not exist",
		Bucket:  bucket,
	}
}

func newTransportError(bucket, key, message string, err error) *Error {
	return &Error{
		Code:    ErrCodeTransport,
		Message: message,
		Bucket:  bucket,
		Key:     key,
		Err:     err,
	}
}

func newValidationError(bucket, key string, err error) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: "invalid input",
		Bucket:  bucket,
		Key:     key,
		Err:     err,
	}
}

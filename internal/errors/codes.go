// Package errors defines the coded error taxonomy shared by the store,
// the agent engine and the document cache.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failure for callers that need to decide between
// retrying, degrading or surfacing the error.
type ErrorCode string

const (
	// ErrCodePersistenceFailed indicates the store is unreachable or a
	// transaction failed. Retryable with backoff.
	ErrCodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"
	// ErrCodeCorruptCheckpoint indicates a checkpoint blob could not be
	// deserialized. Non-retryable; the thread state is unreadable.
	ErrCodeCorruptCheckpoint ErrorCode = "CORRUPT_CHECKPOINT"
	// ErrCodeToolLoopExceeded indicates a turn exceeded the maximum number
	// of tool hops and was aborted.
	ErrCodeToolLoopExceeded ErrorCode = "TOOL_LOOP_EXCEEDED"
	// ErrCodeNoDocument indicates no document was ever ingested for the thread.
	ErrCodeNoDocument ErrorCode = "NO_DOCUMENT"
	// ErrCodeDocumentMissing indicates a document was ingested but its
	// artifact is gone, so the index cannot be rebuilt.
	ErrCodeDocumentMissing ErrorCode = "DOCUMENT_MISSING"
	// ErrCodeIngestFailed indicates ingestion failed: no embedding backend
	// configured or the uploaded file is unreadable.
	ErrCodeIngestFailed ErrorCode = "INGEST_FAILED"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeNotFound indicates the requested entity does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Error is a structured error carrying a code and an optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a coded error without a cause.
func New(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a code and message.
func Wrap(cause error, code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// Wrapf wraps an existing error with a code and formatted message.
func Wrapf(cause error, code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf extracts the code from err, or returns the provided default when
// err carries no code.
func CodeOf(err error, def ErrorCode) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return def
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// Retryable reports whether the failure class is worth retrying with
// backoff. Corruption and argument errors are permanent.
func Retryable(err error) bool {
	switch CodeOf(err, ErrCodeInvalidArgument) {
	case ErrCodePersistenceFailed:
		return true
	default:
		return false
	}
}

package errors

import (
	"errors"
	"fmt"
)

// Code categorizes an application error.
type Code string

const (
	CodeInvalidConfig Code = "INVALID_CONFIG"

	CodeStorageOpen  Code = "STORAGE_OPEN"
	CodeStorageQuery Code = "STORAGE_QUERY"
	CodeMigration    Code = "MIGRATION"

	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeInvalidCursor Code = "INVALID_CURSOR"

	CodeConnection Code = "CONNECTION"
	CodeProtocol   Code = "PROTOCOL"
	CodeNotReady   Code = "NOT_READY"

	CodeRateLimit Code = "RATE_LIMIT"
	CodeNotFound  Code = "NOT_FOUND"
	CodeTimeout   Code = "TIMEOUT"
	CodeInternal  Code = "INTERNAL"
)

// AppError is a structured application error with a category code and
// an optional retryability hint.
type AppError struct {
	Code      Code
	Message   string
	Cause     error
	Retryable bool
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError without a cause.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: err}
}

// WrapRetryable wraps an error and marks it safe to retry.
func WrapRetryable(err error, code Code, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: err, Retryable: true}
}

// IsRetryable reports whether err (or anything it wraps) is marked retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetCode returns the code of err, or CodeInternal for foreign errors.
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

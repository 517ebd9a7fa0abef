package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the different kinds of failure the synchronizer reports
type ErrorType string

const (
	ErrorTypeInvalidCheckpoint ErrorType = "invalid_checkpoint"
	ErrorTypeRepository        ErrorType = "repository"
	ErrorTypeIndex             ErrorType = "index"
	ErrorTypeStore             ErrorType = "store"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeConfig            ErrorType = "config"
	ErrorTypeUnknown           ErrorType = "unknown"
)

// Error is a typed error carrying an optional cause
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

// New creates a typed error
func New(errorType ErrorType, message string, cause error) *Error {
	return &Error{Type: errorType, Message: message, Err: cause}
}

// Newf creates a typed error with a formatted message and no cause
func Newf(errorType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errorType, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeRepository, ErrorTypeStore:
		return true
	case ErrorTypeInvalidCheckpoint, ErrorTypeIndex, ErrorTypeNotFound, ErrorTypeConfig:
		return false
	default:
		return false
	}
}

// TypeOf returns the type of the first typed error in err's chain
func TypeOf(err error) ErrorType {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err's chain contains a typed error of the given type
func IsType(err error, errorType ErrorType) bool {
	return err != nil && TypeOf(err) == errorType
}

// IsInvalidCheckpoint reports whether err was raised for a malformed checkpoint token
func IsInvalidCheckpoint(err error) bool {
	return IsType(err, ErrorTypeInvalidCheckpoint)
}

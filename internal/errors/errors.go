package errors

import (
	"errors"
	"fmt"
)

// Error codes for programmatic handling.
const (
	CodeValidation       = "VALIDATION"
	CodeCapacityExceeded = "CAPACITY_EXCEEDED"
	CodeNotFound         = "NOT_FOUND"
	CodeIO               = "IO_ERROR"
	CodeInvalidRef       = "INVALID_REF"
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeMergeFailed      = "MERGE_FAILED"
)

// Sentinels for errors.Is. Matching is by code, so any MemError with the same
// code compares equal regardless of message.
var (
	ErrValidation       = New(CodeValidation, "invalid memory entry")
	ErrCapacityExceeded = New(CodeCapacityExceeded, "memory file capacity exceeded")
	ErrNotFound         = New(CodeNotFound, "memory file not found")
	ErrIO               = New(CodeIO, "memory storage unavailable")
	ErrInvalidRef       = New(CodeInvalidRef, "invalid memory reference")
	ErrConfigInvalid    = New(CodeConfigInvalid, "invalid configuration")
	ErrMergeFailed      = New(CodeMergeFailed, "consolidation failed")
)

// MemError is a structured error with a code and actionable suggestion.
type MemError struct {
	Code       string // machine-readable code (e.g. CAPACITY_EXCEEDED)
	Message    string // human-readable description
	Suggestion string // actionable fix
	Err        error  // wrapped underlying error
}

// Error implements the error interface.
func (e *MemError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap supports errors.Is / errors.As.
func (e *MemError) Unwrap() error {
	return e.Err
}

// New creates a MemError with the given code and message.
func New(code, message string) *MemError {
	return &MemError{Code: code, Message: message}
}

// Newf creates a MemError with a formatted message.
func Newf(code, format string, args ...any) *MemError {
	return &MemError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a MemError wrapping an existing error.
func Wrap(code, message string, err error) *MemError {
	return &MemError{Code: code, Message: message, Err: err}
}

// WithSuggestion returns the error with the suggestion set.
func (e *MemError) WithSuggestion(suggestion string) *MemError {
	e.Suggestion = suggestion
	return e
}

// Is checks whether target matches this error's code.
func (e *MemError) Is(target error) bool {
	var me *MemError
	if errors.As(target, &me) {
		return e.Code == me.Code
	}
	return false
}

// AsCode extracts the MemError code from an error, or "" if not a MemError.
func AsCode(err error) string {
	var me *MemError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// Suggestion extracts the suggestion from an error, or "" if not a MemError.
func Suggestion(err error) string {
	var me *MemError
	if errors.As(err, &me) {
		return me.Suggestion
	}
	return ""
}

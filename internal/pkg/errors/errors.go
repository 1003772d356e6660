// Package errors provides custom error types and error handling utilities.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes.
const (
	// Caller errors.
	CodeValidation  = "VALIDATION_ERROR"
	CodeInvalidMode = "INVALID_MODE"
	CodeParse       = "PARSE_ERROR"
	CodeNotFound    = "NOT_FOUND"

	// Environment errors.
	CodeIO          = "IO_ERROR"
	CodeStorage     = "STORAGE_ERROR"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal    = "INTERNAL_ERROR"
)

// AppError represents an application error with code and details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Convenience constructors.

// ValidationError creates a validation error.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// InvalidModeError creates an unrecognized mode error.
func InvalidModeError(mode string) *AppError {
	return New(CodeInvalidMode, fmt.Sprintf("unrecognized mode %q", mode)).WithDetail("mode", mode)
}

// ParseError creates a parse error pointing at a line of input.
func ParseError(source string, line int, message string) *AppError {
	return New(CodeParse, fmt.Sprintf("%s:%d: %s", source, line, message)).
		WithDetail("source", source).
		WithDetail("line", fmt.Sprintf("%d", line))
}

// IOError creates an I/O error for a path.
func IOError(path string, err error) *AppError {
	return Wrap(CodeIO, fmt.Sprintf("accessing %s", path), err).WithDetail("path", path)
}

// StorageError creates a result store error.
func StorageError(message string, err error) *AppError {
	return Wrap(CodeStorage, message, err)
}

// NotFoundError creates a not found error.
func NotFoundError(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// InternalError creates an internal error.
func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// ServiceUnavailableError creates a service unavailable error.
func ServiceUnavailableError(service string) *AppError {
	message := "service unavailable"
	if service != "" {
		message = fmt.Sprintf("%s is unavailable", service)
	}
	return New(CodeUnavailable, message)
}

// CodeOf returns the code of the first AppError in err's chain, or "" if there is none.
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsValidation checks if error is a validation error.
func IsValidation(err error) bool {
	return CodeOf(err) == CodeValidation
}

// IsInvalidMode checks if error is an unrecognized mode error.
func IsInvalidMode(err error) bool {
	return CodeOf(err) == CodeInvalidMode
}

// IsParse checks if error is a parse error.
func IsParse(err error) bool {
	return CodeOf(err) == CodeParse
}

// IsNotFound checks if error is a not found error.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// JoinProblems combines validation problems into one validation error, or returns nil if there are none.
func JoinProblems(problems []string) error {
	switch len(problems) {
	case 0:
		return nil
	case 1:
		return ValidationError(problems[0])
	}
	msg := problems[0]
	for _, p := range problems[1:] {
		msg += "; " + p
	}
	return ValidationError(msg).WithDetail("problems", fmt.Sprintf("%d", len(problems)))
}

package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from external service
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeInvalidPattern indicates a regex query that does not compile
	ErrorTypeInvalidPattern ErrorType = "INVALID_PATTERN"

	// ErrorTypeDatastore indicates a failure reported by the underlying datastore
	ErrorTypeDatastore ErrorType = "DATASTORE"

	// ErrorTypeAnalyticsFlush indicates a failed analytics batch insert
	ErrorTypeAnalyticsFlush ErrorType = "ANALYTICS_FLUSH"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{Type: ErrorTypeNotFound, Message: message}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{Type: ErrorTypeValidation, Message: message}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeExternal, Message: message, Err: err}
}

// NewInvalidPatternError reports a search pattern that failed to compile
func NewInvalidPatternError(pattern string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidPattern,
		Message: fmt.Sprintf("invalid search pattern %q", pattern),
		Err:     err,
	}
}

// NewDatastoreError wraps a failure from the datastore client
func NewDatastoreError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeDatastore, Message: message, Err: err}
}

// NewAnalyticsFlushError wraps a failed analytics batch insert
func NewAnalyticsFlushError(batchSize int, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeAnalyticsFlush,
		Message: fmt.Sprintf("failed to flush %d analytics records", batchSize),
		Err:     err,
	}
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsType reports whether err carries an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

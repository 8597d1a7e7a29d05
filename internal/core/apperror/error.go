// Package apperror provides structured error handling for the data layer.
// All client-facing errors must use AppError so responses carry a stable
// machine-readable kind.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes, mirroring the layer's error taxonomy.
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Input errors (400)
	CodeMalformedInput   = "MALFORMED_INPUT"
	CodeTypeMismatch     = "TYPE_MISMATCH"
	CodeUnknownField     = "UNKNOWN_FIELD"
	CodeInvalidReference = "INVALID_REFERENCE"

	// Authorization errors (401)
	CodeUnauthorized = "UNAUTHORIZED"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict with existing state (409)
	CodeConflict = "CONFLICT"
)

// AppError is the standard error type for the platform.
// It implements the error interface and provides structured details for API
// responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (offending key, reference, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewMalformedInput creates an error for an unparsable request body (400).
func NewMalformedInput(message string) *AppError {
	return &AppError{
		Code:       CodeMalformedInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewTypeMismatch creates an error for a JSON value whose dynamic type does
// not match the column's semantic type (400). The offending key is always
// named.
func NewTypeMismatch(key, expected, got string) *AppError {
	return &AppError{
		Code:       CodeTypeMismatch,
		Message:    fmt.Sprintf("field %q: expected %s, got %s", key, expected, got),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"field": key, "expected": expected, "got": got},
	}
}

// NewUnknownField creates an error for an input key that names neither a
// scalar column nor a relationship (400).
func NewUnknownField(key string) *AppError {
	return &AppError{
		Code:       CodeUnknownField,
		Message:    fmt.Sprintf("unrecognized field %q", key),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"field": key},
	}
}

// NewInvalidReference creates an error for an unparsable or dangling
// reference string (400).
func NewInvalidReference(key, ref string) *AppError {
	return &AppError{
		Code:       CodeInvalidReference,
		Message:    fmt.Sprintf("field %q: invalid reference %q", key, ref),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"field": key, "reference": ref},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, ref any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "ref": ref},
	}
}

// NewConflict creates a conflict error (409) for uniqueness or referential
// integrity violations at persist time.
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewDatabase creates a database error (500) wrapping the driver error.
func NewDatabase(err error) *AppError {
	return &AppError{
		Code:       CodeDatabase,
		Message:    "Database error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsConflict checks if error is CodeConflict
func IsConflict(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeConflict
	}
	return false
}

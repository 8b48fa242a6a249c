package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents a typed error code.
type ErrorCode string

const (
	// ErrorCodeInternal represents an internal server error.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrorCodeNotFound represents a blob (or other resource) that does not exist.
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrorCodeInvalidInput represents a bad or missing file, malformed metadata,
	// or a path-traversal attempt in a blob name.
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrorCodeValidation represents a request body that failed validation.
	ErrorCodeValidation ErrorCode = "VALIDATION_ERROR"
	// ErrorCodePayloadTooLarge represents an upload exceeding the configured maximum.
	ErrorCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	// ErrorCodeStorageUnavailable represents a storage provider connectivity,
	// auth, or throttling failure.
	ErrorCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
)

// AppError represents an application error with code, message, and HTTP status.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Err        error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error.
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// NewAppErrorWithErr creates a new application error with an underlying error.
func NewAppErrorWithErr(code ErrorCode, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// FromError converts a standard error to an AppError.
// If the error is already an AppError, it returns it as-is.
// Otherwise, it wraps it as an internal error. The wrapped error text is kept
// out of the public message so provider details never reach the caller.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr
	}

	return NewAppErrorWithErr(
		ErrorCodeInternal,
		"An internal error occurred",
		http.StatusInternalServerError,
		err,
	)
}

// IsNotFound reports whether err is a NOT_FOUND application error.
func IsNotFound(err error) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == ErrorCodeNotFound
}

// Common error constructors

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *AppError {
	return NewAppError(ErrorCodeNotFound, message, http.StatusNotFound)
}

// NewInvalidInputError creates an invalid input error.
func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrorCodeInvalidInput, message, http.StatusBadRequest)
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *AppError {
	return NewAppError(ErrorCodeValidation, message, http.StatusBadRequest)
}

// NewPayloadTooLargeError creates a payload too large error.
func NewPayloadTooLargeError(message string) *AppError {
	return NewAppError(ErrorCodePayloadTooLarge, message, http.StatusRequestEntityTooLarge)
}

// NewStorageUnavailableError creates a storage unavailable error.
func NewStorageUnavailableError(message string, err error) *AppError {
	return NewAppErrorWithErr(ErrorCodeStorageUnavailable, message, http.StatusServiceUnavailable, err)
}

// NewInternalError creates an internal error.
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternal, message, http.StatusInternalServerError)
}

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeProcessing   ErrorType = "processing"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeProvider     ErrorType = "provider"
	ErrorTypeState        ErrorType = "state"
)

// ErrorKind classifies failures of an analysis attempt.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindNotConfigured     ErrorKind = "NotConfigured"
	KindNoFaceDetected    ErrorKind = "NoFaceDetected"
	KindTransportError    ErrorKind = "TransportError"
	KindMalformedResponse ErrorKind = "MalformedResponse"
	KindMissingState      ErrorKind = "MissingState"
	KindInvalidImage      ErrorKind = "InvalidImage"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Kind       ErrorKind `json:"kind,omitempty"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	label := string(e.Type)
	if e.Kind != KindNone {
		label = string(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", label, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", label, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails attaches a detail string and returns the same error.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNetwork,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    message,
		StatusCode: http.StatusGatewayTimeout,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Cause:      cause,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
		Cause:      cause,
	}
}

// NewNotConfiguredError reports a provider without usable credentials.
func NewNotConfiguredError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeProvider,
		Kind:       KindNotConfigured,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
	}
}

// NewNoFaceDetectedError reports a detection call that found zero faces.
func NewNoFaceDetectedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeProvider,
		Kind:       KindNoFaceDetected,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// NewTransportError reports a failed or non-successful provider call.
func NewTransportError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProvider,
		Kind:       KindTransportError,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewMalformedResponseError reports a provider body that could not be parsed.
func NewMalformedResponseError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProvider,
		Kind:       KindMalformedResponse,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewMissingStateError reports a display request without a stored attempt.
func NewMissingStateError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeState,
		Kind:       KindMissingState,
		Message:    message,
		StatusCode: http.StatusSeeOther,
	}
}

// NewInvalidImageError reports an image payload that cannot be decoded.
func NewInvalidImageError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Kind:       KindInvalidImage,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// KindOf returns the attempt error kind carried by err, or KindNone.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindNone
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

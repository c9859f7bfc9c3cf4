package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication & Authorization
	ErrCodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden      ErrorCode = "FORBIDDEN"
	ErrCodeInvalidToken   ErrorCode = "INVALID_TOKEN"
	ErrCodeSessionRevoked ErrorCode = "SESSION_REVOKED"

	// Validation
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired    ErrorCode = "MISSING_REQUIRED"
	ErrCodeInvalidDestination ErrorCode = "INVALID_DESTINATION"

	// Resource
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Session lifecycle
	ErrCodeSessionNotReady   ErrorCode = "SESSION_NOT_READY"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeCodeTimeout       ErrorCode = "CODE_TIMEOUT"
	ErrCodeCodeFailed        ErrorCode = "CODE_FAILED"
	ErrCodeEngineStart       ErrorCode = "ENGINE_START_FAILED"

	// Media resolution
	ErrCodeUnsupportedDescriptor ErrorCode = "UNSUPPORTED_DESCRIPTOR"
	ErrCodeFetchFailed           ErrorCode = "FETCH_FAILED"
	ErrCodeDecodeFailed          ErrorCode = "DECODE_FAILED"

	// Transport
	ErrCodeTransport ErrorCode = "TRANSPORT_ERROR"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func InvalidToken(message string) *AppError {
	return New(ErrCodeInvalidToken, message)
}

func SessionRevoked() *AppError {
	return New(ErrCodeSessionRevoked, "Session is no longer valid. Please re-authenticate.")
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func AlreadyExists(resource string) *AppError {
	return New(ErrCodeAlreadyExists, fmt.Sprintf("%s already exists", resource))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func InvalidDestination(raw string) *AppError {
	return New(ErrCodeInvalidDestination, fmt.Sprintf("Destination %q contains no digits", raw))
}

func SessionNotReady() *AppError {
	return New(ErrCodeSessionNotReady, "Session is not active or ready.")
}

func InvalidTransition(from, event string) *AppError {
	return New(ErrCodeInvalidTransition, fmt.Sprintf("Event %s is not valid in state %s", event, from))
}

func CodeTimeout() *AppError {
	return New(ErrCodeCodeTimeout, "Timed out waiting for the pairing code")
}

func CodeFailed(reason string) *AppError {
	return New(ErrCodeCodeFailed, fmt.Sprintf("Failed to generate pairing code: %s", reason))
}

func EngineStart(cause error) *AppError {
	return Wrap(ErrCodeEngineStart, "Failed to start automation engine", cause)
}

func UnsupportedDescriptor() *AppError {
	return New(ErrCodeUnsupportedDescriptor, "Unsupported media descriptor")
}

func FetchFailed(source string, cause error) *AppError {
	return Wrap(ErrCodeFetchFailed, fmt.Sprintf("Failed to fetch media from %s", source), cause)
}

func DecodeFailed(cause error) *AppError {
	return Wrap(ErrCodeDecodeFailed, "Failed to decode inline media payload", cause)
}

func Transport(cause error) *AppError {
	return Wrap(ErrCodeTransport, "Failed to send message", cause)
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsMediaResolution reports whether the code belongs to the media resolution family.
func IsMediaResolution(code ErrorCode) bool {
	switch code {
	case ErrCodeUnsupportedDescriptor, ErrCodeFetchFailed, ErrCodeDecodeFailed:
		return true
	}
	return false
}

package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers and services MUST use these constants
// instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodePayloadMalformed    ErrorCode = "validation_payload_malformed"
	ErrCodeProviderMismatch    ErrorCode = "validation_provider_mismatch"
	ErrCodeValidationBodyLimit ErrorCode = "validation_body_too_large"

	// Auth (401)
	ErrCodeSignatureInvalid ErrorCode = "auth_signature_invalid"
	ErrCodeSignatureMissing ErrorCode = "auth_signature_missing"

	// Control loop
	ErrCodeLockBusy       ErrorCode = "conflict_scaling_lock_busy"
	ErrCodeDuplicateEvent ErrorCode = "conflict_duplicate_event"

	// Upstream (502)
	ErrCodeCapacityFetchFailed  ErrorCode = "upstream_capacity_fetch_failed"
	ErrCodeCapacityUpdateFailed ErrorCode = "upstream_capacity_update_failed"
	ErrCodeUpstreamRejected     ErrorCode = "upstream_request_rejected"
	ErrCodeUpstreamRateLimited  ErrorCode = "upstream_rate_limited"

	// Internal (500)
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"

	// Startup (fatal, no HTTP mapping in practice)
	ErrCodeStartupConfigInvalid ErrorCode = "startup_config_invalid"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. All domain and handler
// errors are expressed as AppError to enable consistent error formatting,
// HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

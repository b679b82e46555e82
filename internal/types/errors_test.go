package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// TestAppErrorImplementsError verifies that *AppError satisfies the error interface.
func TestAppErrorImplementsError(t *testing.T) {
	var _ error = (*AppError)(nil)
}

// TestAppErrorErrorFormat verifies the Error() method produces "code: message".
func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeSignatureInvalid,
		Message: "webhook signature verification failed",
	}

	expected := "auth_signature_invalid: webhook signature verification failed"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

// TestAppErrorUnwrap verifies the error chain support via Unwrap.
func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection reset by peer")
	appErr := &AppError{
		Code:    ErrCodeCapacityFetchFailed,
		Message: "failed to fetch cluster capacity",
		Err:     underlying,
	}

	if appErr.Unwrap() != underlying {
		t.Errorf("Unwrap() returned unexpected error: got %v, want %v", appErr.Unwrap(), underlying)
	}
}

// TestAppErrorUnwrapNil verifies Unwrap returns nil when no underlying error exists.
func TestAppErrorUnwrapNil(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeDuplicateEvent,
		Message: "event already processed",
	}

	if appErr.Unwrap() != nil {
		t.Errorf("Unwrap() should return nil when Err is nil, got %v", appErr.Unwrap())
	}
}

// TestAppErrorErrorsAs verifies that errors.As can extract AppError from a chain.
func TestAppErrorErrorsAs(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeLockBusy,
		Message: "scaling operation already in progress",
	}
	wrappedErr := fmt.Errorf("control loop failed: %w", appErr)

	var extracted *AppError
	if !errors.As(wrappedErr, &extracted) {
		t.Fatal("errors.As failed to extract *AppError from chain")
	}
	if extracted.Code != ErrCodeLockBusy {
		t.Errorf("extracted code = %q, want %q", extracted.Code, ErrCodeLockBusy)
	}
}

// TestErrorCodeHTTPStatus verifies the prefix-based status mapping.
func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodePayloadMalformed, http.StatusBadRequest},
		{ErrCodeProviderMismatch, http.StatusBadRequest},
		{ErrCodeValidationBodyLimit, http.StatusBadRequest},
		{ErrCodeSignatureInvalid, http.StatusUnauthorized},
		{ErrCodeSignatureMissing, http.StatusUnauthorized},
		{ErrCodeLockBusy, http.StatusConflict},
		{ErrCodeDuplicateEvent, http.StatusConflict},
		{ErrCodeCapacityFetchFailed, http.StatusBadGateway},
		{ErrCodeCapacityUpdateFailed, http.StatusBadGateway},
		{ErrCodeUpstreamRejected, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimited, http.StatusBadGateway},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrCodeStartupConfigInvalid, http.StatusInternalServerError},
		{ErrorCode("something_unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestNewAppErrorWithDetails verifies details are carried through construction.
func TestNewAppErrorWithDetails(t *testing.T) {
	appErr := NewAppErrorWithDetails(
		ErrCodeUpstreamRejected,
		"spot api rejected the request",
		nil,
		map[string]any{"status": 422},
	)

	if appErr.Details["status"] != 422 {
		t.Errorf("Details not preserved: %v", appErr.Details)
	}
	if appErr.HTTPStatus() != http.StatusBadGateway {
		t.Errorf("HTTPStatus() = %d, want 502", appErr.HTTPStatus())
	}
}

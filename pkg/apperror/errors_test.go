package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("WHK_001", "Invalid webhook signature", http.StatusBadRequest),
			expected: "[WHK_001] Invalid webhook signature",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_001", "Transient storage failure", http.StatusServiceUnavailable, fmt.Errorf("connection refused")),
			expected: "[SYS_001] Transient storage failure: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusServiceUnavailable, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsNilUnwrap(t *testing.T) {
	appErr := New("WHK_001", "test", http.StatusBadRequest)
	assert.Nil(t, appErr.Unwrap())
}

func TestWebhookErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"InvalidSignature", ErrInvalidSignature(), "WHK_001", 400},
		{"MalformedEvent", ErrMalformedEvent(fmt.Errorf("bad json")), "WHK_002", 400},
		{"PaymentNotFound", ErrPaymentNotFound("cs_123"), "WHK_003", 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestNotificationErrors(t *testing.T) {
	assert.Equal(t, "NTF_001", ErrTemplateNotFound("payment_confirmed").Code)
	assert.Contains(t, ErrTemplateNotFound("payment_confirmed").Message, "payment_confirmed")
	assert.Equal(t, "NTF_002", ErrUnknownChannel("CARRIER_PIGEON").Code)
}

func TestSystemErrors(t *testing.T) {
	inner := fmt.Errorf("deadlock detected")

	transient := ErrTransient(inner)
	assert.Equal(t, "SYS_001", transient.Code)
	assert.Equal(t, http.StatusServiceUnavailable, transient.HTTPStatus)
	assert.True(t, errors.Is(transient, inner))

	internal := InternalError(inner)
	assert.Equal(t, "SYS_002", internal.Code)
	assert.Equal(t, http.StatusInternalServerError, internal.HTTPStatus)
}

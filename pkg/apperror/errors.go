package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Webhook Reconciliation (WHK) ----

// ErrInvalidSignature rejects an event whose HMAC does not match. Nothing is
// persisted for these.
func ErrInvalidSignature() *AppError {
	return New("WHK_001", "Invalid webhook signature", http.StatusBadRequest)
}

// ErrMalformedEvent rejects an event body that does not parse or is missing
// required fields. No receipt is recorded.
func ErrMalformedEvent(err error) *AppError {
	return Wrap("WHK_002", "Malformed webhook event", http.StatusBadRequest, err)
}

// ErrPaymentNotFound means the event references a payment this system has no
// record of. The event is rejected without a receipt so a later retry can
// still reconcile once the payment exists.
func ErrPaymentNotFound(ref string) *AppError {
	return New("WHK_003", fmt.Sprintf("No payment matches reference %s", ref), http.StatusBadRequest)
}

// ---- Notifications (NTF) ----

func ErrTemplateNotFound(key string) *AppError {
	return New("NTF_001", fmt.Sprintf("Template not found: %s", key), http.StatusNotFound)
}

func ErrUnknownChannel(channel string) *AppError {
	return New("NTF_002", fmt.Sprintf("Unknown notification channel: %s", channel), http.StatusBadRequest)
}

// ---- System & Infrastructure (SYS) ----

// ErrTransient signals a storage or transaction failure the caller should
// treat as retryable. The webhook sender will redeliver; the dedupe gate makes
// the retry safe.
func ErrTransient(err error) *AppError {
	return Wrap("SYS_001", "Transient storage failure", http.StatusServiceUnavailable, err)
}

// InternalError wraps an internal error as a SYS_002 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_002", "Internal server error", http.StatusInternalServerError, err)
}

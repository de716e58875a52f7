// Package errors provides structured application errors. Service-layer code
// returns AppError values so handlers can emit consistent JSON responses with
// machine-discriminable codes and never leak internal details to clients.
package errors

import "net/http"

// AppError carries an error code, human-readable message, HTTP status code,
// and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an
// internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "VALIDATION_FAILED", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrForbidden      = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
	ErrConflict       = &AppError{Code: "CONFLICT", Message: "Conflicting state", StatusCode: http.StatusConflict}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Case lifecycle errors.
var (
	ErrIllegalTransition = &AppError{Code: "ILLEGAL_TRANSITION", Message: "Status transition is not allowed", StatusCode: http.StatusBadRequest}
	ErrPaymentRequired   = &AppError{Code: "PAYMENT_REQUIRED", Message: "Case has no successful payment; cannot leave PENDING", StatusCode: http.StatusBadRequest}
	ErrInactiveService   = &AppError{Code: "INACTIVE_SERVICE", Message: "Service is not currently offered", StatusCode: http.StatusBadRequest}
	ErrPlanNotFound      = &AppError{Code: "PLAN_NOT_FOUND", Message: "Service plan not found", StatusCode: http.StatusBadRequest}
	ErrStaffRequired     = &AppError{Code: "STAFF_REQUIRED", Message: "Assigned user is not CA firm staff", StatusCode: http.StatusBadRequest}
	ErrCaseNotFound      = &AppError{Code: "CASE_NOT_FOUND", Message: "Case not found", StatusCode: http.StatusNotFound}
)

// Payment reconciliation errors.
var (
	ErrAlreadyPaid      = &AppError{Code: "ALREADY_PAID", Message: "Payment already processed for this case", StatusCode: http.StatusBadRequest}
	ErrCaseNotPending   = &AppError{Code: "CASE_NOT_PENDING", Message: "Case is not waiting for payment", StatusCode: http.StatusBadRequest}
	ErrInvalidSignature = &AppError{Code: "INVALID_SIGNATURE", Message: "Payment signature verification failed", StatusCode: http.StatusBadRequest}
	ErrGateway          = &AppError{Code: "GATEWAY_ERROR", Message: "Payment gateway request failed", StatusCode: http.StatusBadGateway}
)

// Document errors.
var (
	ErrUnsupportedFileType = &AppError{Code: "UNSUPPORTED_FILE_TYPE", Message: "Only pdf, jpg and jpeg files are allowed", StatusCode: http.StatusBadRequest}
	ErrDocumentNotFound    = &AppError{Code: "DOCUMENT_NOT_FOUND", Message: "Document not found", StatusCode: http.StatusNotFound}
)

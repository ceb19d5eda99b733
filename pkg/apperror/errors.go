package apperror

import (
	"errors"
	"net/http"
)

// Stable machine-readable reasons returned to API callers.
const (
	ReasonValidation            = "validation_error"
	ReasonNotFound              = "not_found"
	ReasonOverpayment           = "overpayment"
	ReasonInsufficientCredit    = "insufficient_credit"
	ReasonConcurrentSettlement  = "concurrent_settlement"
	ReasonReceiptAlreadyPaid    = "receipt_already_paid"
	ReasonInsufficientStock     = "insufficient_stock"
	ReasonSyncAlreadyRunning    = "sync_already_running"
	ReasonIdempotencyInProgress = "idempotency_in_progress"
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code    int            `json:"code"`
	Reason  string         `json:"reason,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Errors  []FieldError   `json:"errors,omitempty"`
}

// FieldError represents a validation error for a specific field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

// Is matches errors carrying the same Reason, so the reason sentinels below
// work with errors.Is even when the error was built with details attached.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if e == t {
		return true
	}
	return t.Reason != "" && t.Reason == e.Reason
}

// Common errors
var (
	ErrNotFound       = &AppError{Code: http.StatusNotFound, Message: "Resource not found"}
	ErrUnauthorized   = &AppError{Code: http.StatusUnauthorized, Message: "Unauthorized"}
	ErrForbidden      = &AppError{Code: http.StatusForbidden, Message: "Forbidden"}
	ErrBadRequest     = &AppError{Code: http.StatusBadRequest, Message: "Bad request"}
	ErrInternalServer = &AppError{Code: http.StatusInternalServerError, Message: "Internal server error"}
	ErrConflict       = &AppError{Code: http.StatusConflict, Message: "Resource already exists"}
	ErrUnprocessable  = &AppError{Code: http.StatusUnprocessableEntity, Message: "Unprocessable entity"}
	ErrTokenExpired   = &AppError{Code: http.StatusUnauthorized, Message: "Token has expired"}
	ErrInvalidToken   = &AppError{Code: http.StatusUnauthorized, Message: "Invalid token"}

	ErrOverpayment = &AppError{
		Code:    http.StatusUnprocessableEntity,
		Reason:  ReasonOverpayment,
		Message: "Payment exceeds the remaining balance",
	}
	ErrInsufficientCredit = &AppError{
		Code:    http.StatusUnprocessableEntity,
		Reason:  ReasonInsufficientCredit,
		Message: "Insufficient store credit",
	}
	ErrConcurrentSettlement = &AppError{
		Code:    http.StatusConflict,
		Reason:  ReasonConcurrentSettlement,
		Message: "Receipt was settled concurrently, reload the balance and retry",
	}
	ErrReceiptAlreadyPaid = &AppError{
		Code:    http.StatusConflict,
		Reason:  ReasonReceiptAlreadyPaid,
		Message: "Receipt is already fully paid",
	}
	ErrInsufficientStock = &AppError{
		Code:    http.StatusConflict,
		Reason:  ReasonInsufficientStock,
		Message: "Insufficient stock",
	}
	ErrIdempotencyInProgress = &AppError{
		Code:    http.StatusConflict,
		Reason:  ReasonIdempotencyInProgress,
		Message: "A request with this Idempotency-Key is still being processed",
	}
	ErrSyncAlreadyRunning = &AppError{
		Code:    http.StatusConflict,
		Reason:  ReasonSyncAlreadyRunning,
		Message: "A sync run is already in progress",
	}
)

// NewAppError creates a new application error
func NewAppError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(fieldErrors []FieldError) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Reason:  ReasonValidation,
		Message: "Validation failed",
		Errors:  fieldErrors,
	}
}

// NewFieldError is a shorthand for a validation error on a single field.
func NewFieldError(field, message string) *AppError {
	return NewValidationError([]FieldError{{Field: field, Message: message}})
}

// NewNotFoundError creates a not found error with a custom message
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Reason:  ReasonNotFound,
		Message: resource + " not found",
	}
}

// NewConflictError creates a conflict error with a custom message
func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Message: message,
	}
}

// NewBadRequestError creates a bad request error with a custom message
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Message: message,
	}
}

// NewOverpaymentError reports the amount offered against what is still owed.
func NewOverpaymentError(provided, remaining int64) *AppError {
	return withDetails(ErrOverpayment, map[string]any{
		"provided":          float64(provided) / 100,
		"balance_remaining": float64(remaining) / 100,
	})
}

// NewInsufficientCreditError reports the credit needed against what is available.
func NewInsufficientCreditError(needed, available int64) *AppError {
	return withDetails(ErrInsufficientCredit, map[string]any{
		"needed":    float64(needed) / 100,
		"available": float64(available) / 100,
	})
}

func withDetails(base *AppError, details map[string]any) *AppError {
	return &AppError{
		Code:    base.Code,
		Reason:  base.Reason,
		Message: base.Message,
		Details: details,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError converts an error to AppError if possible
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{
		Code:    http.StatusInternalServerError,
		Message: err.Error(),
	}
}

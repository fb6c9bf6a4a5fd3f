package common

import (
	"errors"
	"net/http"
)

// Stable machine-readable error codes shared across handlers.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeTenantMismatch    = "TENANT_MISMATCH"
	CodeTenantRequired    = "TENANT_REQUIRED"
	CodeInvalidTenant     = "INVALID_TENANT"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeConflict          = "CONFLICT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeForbidden         = "FORBIDDEN"
	CodeInternal          = "INTERNAL"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// ValidationError builds a 400 with the field named in the message.
func ValidationError(message string) *AppError {
	return NewAppError(CodeValidation, message, http.StatusBadRequest, nil)
}

// NotFoundError builds a 404.
func NotFoundError(message string) *AppError {
	return NewAppError(CodeNotFound, message, http.StatusNotFound, nil)
}

// ForbiddenError builds a 403.
func ForbiddenError(code, message string) *AppError {
	if code == "" {
		code = CodeForbidden
	}
	return NewAppError(code, message, http.StatusForbidden, nil)
}

// ConflictError builds a 409.
func ConflictError(code, message string) *AppError {
	if code == "" {
		code = CodeConflict
	}
	return NewAppError(code, message, http.StatusConflict, nil)
}

// InternalError wraps an unexpected failure as a 500 without leaking it.
func InternalError(err error) *AppError {
	return NewAppError(CodeInternal, "internal error", http.StatusInternalServerError, err)
}

// RenderError maps any error to the canonical JSON error shape. Non-AppError
// values render as an opaque 500.
func RenderError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		code := appErr.Code
		if code == "" {
			code = CodeInternal
		}
		message := appErr.Message
		if message == "" {
			message = "internal error"
		}
		JSONError(w, status, code, message, appErr.Details)
		return
	}
	JSONError(w, http.StatusInternalServerError, CodeInternal, "internal error", nil)
}

// Package errors defines the service error taxonomy shared by the contest
// engine, its collaborators and the HTTP layer.
package errors

import (
	goerrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable machine-readable error identifier.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "VALIDATION"
	CodeInvalidFormat      ErrorCode = "INVALID_FORMAT"
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	CodeForbidden          ErrorCode = "FORBIDDEN"
	CodeInsufficientFunds  ErrorCode = "INSUFFICIENT_FUNDS"
	CodeOutOfRange         ErrorCode = "OUT_OF_RANGE"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeConflict           ErrorCode = "CONFLICT"
	CodeRateLimited        ErrorCode = "RATE_LIMITED"
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	CodeInternal           ErrorCode = "INTERNAL"
)

// ServiceError is an error with a code, a client-safe message and the HTTP
// status it maps to.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a ServiceError with the same code and message,
// so copies produced by WithDetails still match their sentinel.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// WithDetails returns a copy of the error carrying an extra detail.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	cp := *e
	cp.Details = details
	return &cp
}

// New creates a ServiceError.
func New(code ErrorCode, message string, status int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status}
}

// Wrap creates a ServiceError around an underlying cause.
func Wrap(err error, code ErrorCode, message string, status int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

func Validation(message string) *ServiceError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

func InvalidFormat(field, reason string) *ServiceError {
	return New(CodeInvalidFormat, fmt.Sprintf("invalid %s: %s", field, reason), http.StatusBadRequest).
		WithDetails("field", field)
}

func Unauthorized(message string) *ServiceError {
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidToken(err error) *ServiceError {
	return Wrap(err, CodeInvalidToken, "invalid or expired token", http.StatusUnauthorized)
}

func Forbidden(message string) *ServiceError {
	return New(CodeForbidden, message, http.StatusForbidden)
}

func InsufficientFunds(message string) *ServiceError {
	return New(CodeInsufficientFunds, message, http.StatusPaymentRequired)
}

func OutOfRange(message string) *ServiceError {
	return New(CodeOutOfRange, message, http.StatusNotFound)
}

func NotFound(resource, id string) *ServiceError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound).
		WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return New(CodeConflict, message, http.StatusConflict)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(CodeRateLimited, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

func ServiceUnavailable(message string) *ServiceError {
	return New(CodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

func Internal(message string, err error) *ServiceError {
	return Wrap(err, CodeInternal, message, http.StatusInternalServerError)
}

// GetServiceError extracts the first ServiceError in err's chain.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if goerrors.As(err, &se) {
		return se
	}
	return nil
}

// HasCode reports whether err carries a ServiceError with the given code.
func HasCode(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}

// HTTPStatus returns the status for err, defaulting to 500.
func HTTPStatus(err error) int {
	if se := GetServiceError(err); se != nil && se.HTTPStatus != 0 {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}

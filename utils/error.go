package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

type ErrorCode string

const (
	ErrorCodeUnauthorized     ErrorCode = "Unauthorized"
	ErrorCodeForbidden        ErrorCode = "Forbidden"
	ErrorCodeNotFound         ErrorCode = "NotFound"
	ErrorCodeValidationFailed ErrorCode = "ValidationFailed"
	ErrorCodeBadRequest       ErrorCode = "BadRequest"
	ErrorCodeTooManyRequests  ErrorCode = "TooManyRequests"
	// 2FA header missing or stale; clients prompt for a code and retry.
	ErrorCodeTwoFactorRequired ErrorCode = "2FA_REQUIRED"
)

// AppError is a client-facing error. Its message is shown as-is to API callers.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewUnauthorized(message string) error {
	if message == "" {
		message = "You need to be authenticated to perform this action"
	}
	return &AppError{Code: ErrorCodeUnauthorized, Message: message}
}

func NewForbidden(message string) error {
	if message == "" {
		message = "You are not authorized to perform this action"
	}
	return &AppError{Code: ErrorCodeForbidden, Message: message}
}

func NewNotFound(message string) error {
	if message == "" {
		message = "Not found"
	}
	return &AppError{Code: ErrorCodeNotFound, Message: message}
}

func NewValidationFailed(format string, args ...any) error {
	return &AppError{Code: ErrorCodeValidationFailed, Message: fmt.Sprintf(format, args...)}
}

func NewBadRequest(format string, args ...any) error {
	return &AppError{Code: ErrorCodeBadRequest, Message: fmt.Sprintf(format, args...)}
}

func NewTooManyRequests(message string) error {
	return &AppError{Code: ErrorCodeTooManyRequests, Message: message}
}

func NewTwoFactorRequired(message string) error {
	if message == "" {
		message = "Two-factor authentication required"
	}
	return &AppError{Code: ErrorCodeTwoFactorRequired, Message: message}
}

// ErrorCodeOf returns the code of a client-facing error, or "" for internal errors.
func ErrorCodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func IsErrorCode(err error, code ErrorCode) bool {
	return ErrorCodeOf(err) == code
}

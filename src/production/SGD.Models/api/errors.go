package api_models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a failure class in API responses
type ErrorCode int

const (
	ErrInvalidRequest      ErrorCode = 1000
	ErrResourceNotFound    ErrorCode = 1001
	ErrInternal            ErrorCode = 1002
	ErrDeviceAlreadyExists ErrorCode = 1003
	ErrDeviceNotFound      ErrorCode = 1004
	ErrUnauthenticated     ErrorCode = 1005
)

var errorCodeInfo = map[ErrorCode]struct {
	message string
	status  int
}{
	ErrInvalidRequest:      {"Invalid request parameters", http.StatusBadRequest},
	ErrResourceNotFound:    {"Requested resource not found", http.StatusNotFound},
	ErrInternal:            {"Internal server error occurred", http.StatusInternalServerError},
	ErrDeviceAlreadyExists: {"Device already exists", http.StatusConflict},
	ErrDeviceNotFound:      {"Device not found", http.StatusNotFound},
	ErrUnauthenticated:     {"Authentication is required", http.StatusUnauthorized},
}

// Message returns the canonical text for the code
func (c ErrorCode) Message() string {
	if info, ok := errorCodeInfo[c]; ok {
		return info.message
	}
	return errorCodeInfo[ErrInternal].message
}

// HTTPStatus returns the status the code is served with
func (c ErrorCode) HTTPStatus() int {
	if info, ok := errorCodeInfo[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// AppError is a domain failure carrying an ErrorCode
type AppError struct {
	Code   ErrorCode
	Detail string
	Err    error
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Code.Message(), e.Detail)
	}
	return e.Code.Message()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates an AppError with a detail message
func NewAppError(code ErrorCode, detail string) *AppError {
	return &AppError{Code: code, Detail: detail}
}

// WrapInternal hides err behind ErrInternal while keeping it for logs
func WrapInternal(err error) *AppError {
	return &AppError{Code: ErrInternal, Detail: err.Error(), Err: err}
}

// AsAppError converts any error into an AppError, defaulting to ErrInternal
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return WrapInternal(err)
}

// DeviceNotFound is the error for an unknown device UID
func DeviceNotFound(deviceUID string) *AppError {
	return NewAppError(ErrDeviceNotFound, "device not found: "+deviceUID)
}

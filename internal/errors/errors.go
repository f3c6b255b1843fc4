/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package errors provides the structured error envelope shared by every
// service in the platform. Each error carries a wire kind, an HTTP status
// code and an optional internal cause. Handlers log the full error and
// return only the kind plus a safe message to the caller.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType is the wire-visible kind tag of an error.
type ErrorType string

const (
	// ErrorTypeInvalidRequest covers missing metadata, malformed URLs or
	// UUIDs, argument-set mismatches and type mismatches in requests.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	// ErrorTypePermissionDenied covers every authorization failure,
	// including not-found and prefix-mismatch on reads so that callers
	// cannot probe for entity existence.
	ErrorTypePermissionDenied ErrorType = "permission_denied"
	// ErrorTypeData covers internal encoding failures and invalid
	// synthetic URL construction.
	ErrorTypeData ErrorType = "data_error"
	// ErrorTypeBadTask covers task construction rejections.
	ErrorTypeBadTask ErrorType = "bad_task"
	// ErrorTypeStorage covers failed storage RPCs and codec round-trip
	// failures during writes.
	ErrorTypeStorage ErrorType = "storage_error"
	// ErrorTypeInternal is the fallback for errors that never should reach
	// the wire with a more specific kind.
	ErrorTypeInternal ErrorType = "internal"
)

// statusCodes maps error types to HTTP status codes.
var statusCodes = map[ErrorType]int{
	ErrorTypeInvalidRequest:   http.StatusBadRequest,
	ErrorTypePermissionDenied: http.StatusForbidden,
	ErrorTypeData:             http.StatusUnprocessableEntity,
	ErrorTypeBadTask:          http.StatusUnprocessableEntity,
	ErrorTypeStorage:          http.StatusInternalServerError,
	ErrorTypeInternal:         http.StatusInternalServerError,
}

// AppError is a structured application error.
type AppError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Details    string
	Cause      error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails attaches free-form details to the error in place.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf attaches formatted details to the error in place.
func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// New creates an AppError of the given type.
func New(errorType ErrorType, message string) *AppError {
	return &AppError{
		Type:       errorType,
		Message:    message,
		StatusCode: statusCode(errorType),
	}
}

// Newf creates an AppError with a formatted message.
func Newf(errorType ErrorType, format string, args ...interface{}) *AppError {
	return New(errorType, fmt.Sprintf(format, args...))
}

// Wrap creates an AppError wrapping an underlying cause.
func Wrap(err error, errorType ErrorType, message string) *AppError {
	return &AppError{
		Type:       errorType,
		Message:    message,
		StatusCode: statusCode(errorType),
		Cause:      err,
	}
}

// Wrapf creates an AppError wrapping a cause with a formatted message.
func Wrapf(err error, errorType ErrorType, format string, args ...interface{}) *AppError {
	return Wrap(err, errorType, fmt.Sprintf(format, args...))
}

// NewInvalidRequestError creates an invalid_request error.
func NewInvalidRequestError(message string) *AppError {
	return New(ErrorTypeInvalidRequest, message)
}

// NewPermissionDeniedError creates a permission_denied error.
func NewPermissionDeniedError(message string) *AppError {
	return New(ErrorTypePermissionDenied, message)
}

// NewDataError creates a data_error wrapping the encoding failure.
func NewDataError(operation string, err error) *AppError {
	return Wrapf(err, ErrorTypeData, "data operation failed: %s", operation)
}

// NewBadTaskError creates a bad_task error.
func NewBadTaskError(message string) *AppError {
	return New(ErrorTypeBadTask, message)
}

// NewStorageError creates a storage_error wrapping the underlying RPC failure.
func NewStorageError(operation string, err error) *AppError {
	return Wrapf(err, ErrorTypeStorage, "storage operation failed: %s", operation)
}

// IsType reports whether err is an AppError of the given type.
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetType returns the error type of err, or ErrorTypeInternal for errors
// that are not AppErrors.
func GetType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetStatusCode returns the HTTP status code for err.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// ErrorMessages holds the fixed messages returned to callers for error
// types whose internal message must not leak.
var ErrorMessages = struct {
	PermissionDenied string
	DataError        string
	BadTask          string
	StorageError     string
}{
	PermissionDenied: "permission denied",
	DataError:        "data error",
	BadTask:          "bad task",
	StorageError:     "storage error",
}

// SafeErrorMessage returns the message that may be surfaced to a caller.
// invalid_request messages pass through, everything else collapses to the
// fixed message for its kind.
func SafeErrorMessage(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return "An unexpected error occurred"
	}
	switch appErr.Type {
	case ErrorTypeInvalidRequest:
		return appErr.Message
	case ErrorTypePermissionDenied:
		return ErrorMessages.PermissionDenied
	case ErrorTypeData:
		return ErrorMessages.DataError
	case ErrorTypeBadTask:
		return ErrorMessages.BadTask
	case ErrorTypeStorage:
		return ErrorMessages.StorageError
	default:
		return "An internal error occurred"
	}
}

// LogFields returns structured logging fields describing err.
func LogFields(err error) map[string]interface{} {
	fields := map[string]interface{}{
		"error":       err.Error(),
		"error_type":  string(GetType(err)),
		"status_code": GetStatusCode(err),
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Details != "" {
			fields["error_details"] = appErr.Details
		}
		if appErr.Cause != nil {
			fields["underlying_error"] = appErr.Cause.Error()
		}
	}
	return fields
}

func statusCode(errorType ErrorType) int {
	if code, ok := statusCodes[errorType]; ok {
		return code
	}
	return http.StatusInternalServerError
}

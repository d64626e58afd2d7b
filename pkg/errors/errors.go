package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeUnauthorized indicates the session token was refused or missing
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"

	// ErrorTypeForbidden indicates the actor lacks a capability
	ErrorTypeForbidden ErrorType = "FORBIDDEN"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from external service
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeFetch indicates a transport or parse failure on a read
	ErrorTypeFetch ErrorType = "FETCH"

	// ErrorTypeTransitionRejected indicates the backend refused a lifecycle mutation
	ErrorTypeTransitionRejected ErrorType = "TRANSITION_REJECTED"

	// ErrorTypePreconditionFailed indicates a local guard violation
	ErrorTypePreconditionFailed ErrorType = "PRECONDITION_FAILED"

	// ErrorTypeResolutionUnavailable indicates reverse geocoding failed
	ErrorTypeResolutionUnavailable ErrorType = "RESOLUTION_UNAVAILABLE"
)

// Precondition reasons carried in AppError.Reason.
const (
	ReasonAlreadyForwarded  = "already_forwarded"
	ReasonNoSelection       = "no_selection"
	ReasonNotPending        = "not_pending"
	ReasonOutOfScope        = "out_of_scope"
	ReasonIllegalTransition = "illegal_transition"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	// Reason is a machine readable cause, e.g. the backend's rejection reason
	// or one of the Reason* constants.
	Reason string
	Err    error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
	}
}

// NewForbiddenError creates a capability denial
func NewForbiddenError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeForbidden,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// NewFetchError wraps a failed read against the dispatch backend
func NewFetchError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeFetch,
		Message: message,
		Err:     err,
	}
}

// NewTransitionRejectedError carries the backend's reason for refusing a mutation
func NewTransitionRejectedError(reason string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeTransitionRejected,
		Message: "transition rejected",
		Reason:  reason,
		Err:     err,
	}
}

// NewPreconditionFailedError creates a local guard violation
func NewPreconditionFailedError(reason, message string) *AppError {
	return &AppError{
		Type:    ErrorTypePreconditionFailed,
		Message: message,
		Reason:  reason,
	}
}

// NewResolutionUnavailableError marks a failed reverse geocode
func NewResolutionUnavailableError(err error) *AppError {
	return &AppError{
		Type:    ErrorTypeResolutionUnavailable,
		Message: "address resolution unavailable",
		Err:     err,
	}
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsType reports whether err's chain contains an AppError of type t.
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// ReasonOf returns the Reason of the first AppError in err's chain.
func ReasonOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ""
}

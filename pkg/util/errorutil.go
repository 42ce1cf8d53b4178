package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes surfaced to callers.
const (
	CodeValidation          = "VALIDATION_FAILED"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeCapacityExceeded    = "CAPACITY_EXCEEDED"
	CodeTechnicianInactive  = "TECHNICIAN_INACTIVE"
	CodeNotFound            = "NOT_FOUND"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodePersistence         = "PERSISTENCE_ERROR"
	CodeConflict            = "CONFLICT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeCancelled           = "CANCELLED"
	CodeInternal            = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewInvalidTransition reports a state machine rule violation.
func NewInvalidTransition(from, to string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["from"] = from
	details["to"] = to
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("transition from %s to %s is not allowed", from, to),
		http.StatusUnprocessableEntity, details)
}

func NewCapacityExceeded(technicianID string, workload, max int) error {
	return NewDomainError(CodeCapacityExceeded, "technician at maximum workload", http.StatusConflict, map[string]any{
		"technician_id":          technicianID,
		"current_workload":       workload,
		"max_concurrent_tickets": max,
	})
}

func NewTechnicianInactive(technicianID string) error {
	return NewDomainError(CodeTechnicianInactive, "technician inactive", http.StatusConflict, map[string]any{
		"technician_id": technicianID,
	})
}

func NewConcurrencyConflict(resource string, details map[string]any) error {
	return NewDomainError(CodeConcurrencyConflict, fmt.Sprintf("%s was modified concurrently", resource), http.StatusConflict, details)
}

// NewPersistenceError wraps a storage failure.
func NewPersistenceError(err error) error {
	return &DomainError{
		Code:       CodePersistence,
		Message:    "storage failure",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewCancelled(err error) error {
	return &DomainError{
		Code:       CodeCancelled,
		Message:    "operation cancelled before start",
		HTTPStatus: 499,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewCancelled(err).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// Code returns the stable code carried by err, or CodeInternal.
func Code(err error) string {
	if err == nil {
		return ""
	}
	return ToDomainError(err).Code
}

// IsKind reports whether err carries the given code.
func IsKind(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

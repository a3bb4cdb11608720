package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound              = errors.New("resource not found")
	ErrBadRequest            = errors.New("bad request")
	ErrConflict              = errors.New("resource conflict")
	ErrInternal              = errors.New("internal server error")
	ErrValidation            = errors.New("validation error")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrDuplicateInFlight     = errors.New("duplicate operation in flight")
	ErrStateTransition       = errors.New("invalid state transition")
	ErrExternalService       = errors.New("external service failure")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// InsufficientInventory signals that an operation would drive quantity-on-hand
// (or uncommitted quantity) negative. Surfaced to the caller, never retried
// automatically.
func InsufficientInventory(productID, locationID string, requested, available int) *AppError {
	return &AppError{
		Err:        ErrInsufficientInventory,
		Code:       "INSUFFICIENT_INVENTORY",
		Message:    fmt.Sprintf("insufficient inventory for product %s at location %s", productID, locationID),
		StatusCode: http.StatusUnprocessableEntity,
		Details: map[string]string{
			"product_id":  productID,
			"location_id": locationID,
			"requested":   fmt.Sprintf("%d", requested),
			"available":   fmt.Sprintf("%d", available),
		},
	}
}

// DuplicateInFlight signals that another request with the same idempotency key
// is still executing. The caller should retry later with the same key, not
// resubmit with a different one.
func DuplicateInFlight(key, operation string) *AppError {
	return &AppError{
		Err:        ErrDuplicateInFlight,
		Code:       "DUPLICATE_IN_FLIGHT",
		Message:    fmt.Sprintf("operation %s with key %s is already in flight", operation, key),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"idempotency_key": key,
			"operation":       operation,
		},
	}
}

// StateTransition signals a lifecycle transition that is not valid from the
// entity's current state.
func StateTransition(entity, id, current, attempted string) *AppError {
	return &AppError{
		Err:        ErrStateTransition,
		Code:       "STATE_TRANSITION",
		Message:    fmt.Sprintf("%s %s cannot %s from state %s", entity, id, attempted, current),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"entity":        entity,
			"entity_id":     id,
			"current_state": current,
			"transition":    attempted,
		},
	}
}

// ExternalService wraps a platform integration failure. Eligible for bounded
// automatic retry with backoff.
func ExternalService(platform string, err error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %v", ErrExternalService, err),
		Code:       "EXTERNAL_SERVICE",
		Message:    fmt.Sprintf("platform %s request failed", platform),
		StatusCode: http.StatusBadGateway,
		Details: map[string]string{
			"platform": platform,
		},
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}

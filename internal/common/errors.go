package common

import (
	"errors"
	"net/http"
)

// Error kinds shared by every package of the engine. Domain errors wrap one of
// these with %w so the transport layer can classify them with errors.Is.
var (
	// ErrValidation marks malformed or contradictory input supplied by the caller.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing catalog, provider, promotion or session reference.
	ErrNotFound = errors.New("not found")
	// ErrState marks an illegal drawer transition.
	ErrState = errors.New("illegal state transition")
	// ErrInsufficientPayment marks cash tendered below the order total.
	ErrInsufficientPayment = errors.New("insufficient payment")
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

// DetailedError is implemented by domain errors carrying structured details for
// the response body (e.g. the shortfall of an insufficient payment).
type DetailedError interface {
	ErrorDetails() any
}

// FromError classifies err by kind and returns the AppError the transport should render.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var out *AppError
	switch {
	case errors.Is(err, ErrBadRequest):
		return NewAppError("BAD_REQUEST", "invalid request payload", http.StatusBadRequest, err)
	case errors.Is(err, ErrValidation):
		out = NewAppError("VALIDATION", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, ErrNotFound):
		out = NewAppError("NOT_FOUND", err.Error(), http.StatusNotFound, err)
	case errors.Is(err, ErrState):
		out = NewAppError("STATE", err.Error(), http.StatusConflict, err)
	case errors.Is(err, ErrInsufficientPayment):
		out = NewAppError("INSUFFICIENT_PAYMENT", err.Error(), http.StatusPaymentRequired, err)
	default:
		return NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
	}
	var detailed DetailedError
	if errors.As(err, &detailed) {
		out.Details = detailed.ErrorDetails()
	}
	return out
}

// WriteError renders err using the canonical error shape.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)
	if appErr == nil {
		return
	}
	JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
}

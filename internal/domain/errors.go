package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("transition not allowed in current step")
	ErrNotFound          = errors.New("not found")
	ErrWrite             = errors.New("store write failed")
	ErrSubscription      = errors.New("store subscription failed")
	ErrPastDate          = errors.New("date is in the past")
	ErrDateTooFar        = errors.New("date is too far in the future")
	ErrSessionExpired    = errors.New("booking session not found or expired")
)

// ValidationError is a missing or invalid required field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	cause   error
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// WrapValidation attaches a more specific sentinel (ErrPastDate etc).
func WrapValidation(field string, cause error) *ValidationError {
	return &ValidationError{Field: field, Message: cause.Error(), cause: cause}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.cause
}

// StoreError is a store-layer failure. It matches both its Kind
// (ErrWrite, ErrSubscription, ErrNotFound) and the underlying cause.
type StoreError struct {
	Kind error
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func WriteError(op string, err error) error {
	return &StoreError{Kind: ErrWrite, Op: op, Err: err}
}

func SubscriptionError(op string, err error) error {
	return &StoreError{Kind: ErrSubscription, Op: op, Err: err}
}

func NotFoundError(op string, err error) error {
	return &StoreError{Kind: ErrNotFound, Op: op, Err: err}
}

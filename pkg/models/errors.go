package models

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed field value or template structure.
// APIName references the offending field, task, condition or predicate.
type ValidationError struct {
	APIName string
	Reason  string
	Err     error // Optional sentinel the reason was built from
}

func (e *ValidationError) Error() string {
	if e.APIName == "" {
		return e.Reason
	}

	return fmt.Sprintf("%s: %s", e.APIName, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error for the given api name.
func NewValidationError(apiName, format string, args ...any) *ValidationError {
	return &ValidationError{
		APIName: apiName,
		Reason:  fmt.Sprintf(format, args...),
	}
}

// WrapValidationError creates a validation error carrying a sentinel reason.
func WrapValidationError(apiName string, err error) *ValidationError {
	return &ValidationError{
		APIName: apiName,
		Reason:  err.Error(),
		Err:     err,
	}
}

// AsValidationError extracts a validation error from the chain.
func AsValidationError(err error) (*ValidationError, bool) {
	var target *ValidationError
	if errors.As(err, &target) {
		return target, true
	}

	return nil, false
}

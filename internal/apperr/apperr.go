// Package apperr carries the error kinds every scheduling module shares.
package apperr

import (
	"errors"
	"fmt"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError names the offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidReference marks a request naming a record that does not exist.
var ErrInvalidReference = errors.New("invalid reference")

// Reference wraps err so it matches both itself and ErrInvalidReference.
func Reference(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidReference, err)
}

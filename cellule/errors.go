package cellule

import (
	"errors"
	"fmt"
)

var (
	ErrNameRequired    = errors.New("name is required")
	ErrContentRequired = errors.New("prayer content is required")
	ErrInvalidRole     = errors.New("unknown role")
	ErrInvalidStatus   = errors.New("status must be open or answered")
	ErrUnknownTable    = errors.New("unknown table")
)

// ValidationError reports input rejected before it reached storage.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %v", e.Field, e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error { return &ValidationError{Field: field, Err: err} }

// IsValidation reports whether err was caused by rejected input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

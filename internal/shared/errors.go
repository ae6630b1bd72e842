package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates recoverable bad input.
	ErrValidation = errors.New("validation failed")
)

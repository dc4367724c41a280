package query

import (
	"errors"
	"fmt"
)

// ErrInvalidQuery is the root of every filter, sort or pagination validation failure.
var ErrInvalidQuery = errors.New("invalid query")

// ValidationError describes why a single part of a request was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidQuery, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrInvalidQuery, e.Field, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidQuery).
func (e *ValidationError) Unwrap() error {
	return ErrInvalidQuery
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

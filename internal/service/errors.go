package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/shipping-api/internal/domain"
	"github.com/phrazzld/shipping-api/internal/query"
	"github.com/phrazzld/shipping-api/internal/store"
)

// ServiceError wraps unexpected failures of a service operation with context.
type ServiceError struct {
	// Entity is the entity the operation acted on, e.g. "item"
	Entity string
	// Operation is the operation that failed, e.g. "create", "connect"
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s service %s failed: %s: %v", e.Entity, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s service %s failed: %s", e.Entity, e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError wraps err in a ServiceError. Errors callers are expected to
// branch on (not found, conflict, duplicate, invalid input) are returned
// unchanged.
func NewServiceError(entity, operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if isExpected(err) {
		return err
	}
	return &ServiceError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

func isExpected(err error) bool {
	for _, target := range []error{
		store.ErrNotFound,
		store.ErrConflict,
		store.ErrDuplicate,
		store.ErrInvalidEntity,
		query.ErrInvalidQuery,
		domain.ErrValidation,
		domain.ErrUnknownField,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// errNoneResolved reports that none of the child keys of a relation request
// resolve to records.
func errNoneResolved(rel domain.Relation) error {
	return fmt.Errorf("%w: none of the given %s exist", store.ErrNotFound, rel.Name)
}

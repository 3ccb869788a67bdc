package store

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrConflict      = errors.New("conflict")
)

// NotFoundError carries the entity/id pair for a missing record lookup.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-:.]+$`)

// ValidateEntityID checks the "<source>_<provider_id>" convention holds a
// safe, non-empty identifier before it reaches a query.
func ValidateEntityID(id string) error {
	if id == "" || !idPattern.MatchString(id) {
		return fmt.Errorf("%w: invalid entity id %q", ErrInvalidInput, id)
	}
	return nil
}

func ValidateTenantID(id string) error {
	if id == "" || !idPattern.MatchString(id) {
		return fmt.Errorf("%w: invalid tenant id %q", ErrInvalidInput, id)
	}
	return nil
}

// PaginationParams bounds list queries.
type PaginationParams struct {
	Limit  int
	Offset int
}

func DefaultPagination() PaginationParams {
	return PaginationParams{Limit: 50, Offset: 0}
}

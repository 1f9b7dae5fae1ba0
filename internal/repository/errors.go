package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional update finds the row no
	// longer in the expected state
	ErrConflict = errors.New("conflict: entity was modified concurrently")

	// ErrDuplicate is returned when a unique constraint fails
	ErrDuplicate = errors.New("duplicate entity")

	// ErrForeignKeyViolation is returned when a foreign key constraint fails
	ErrForeignKeyViolation = errors.New("foreign key violation")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
)

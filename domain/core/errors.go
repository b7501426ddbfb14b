package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrArtifactNotFound = fmt.Errorf("%w: artifact", ErrNotFound)
	ErrRunNotFound      = fmt.Errorf("%w: run", ErrNotFound)

	// Input errors
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrMissingColumn    = errors.New("required column missing")
	ErrInvalidMapping   = errors.New("invalid network mapping")
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrUnknownOption    = errors.New("unknown option value")
)

// NewNotFoundError reports a missing resource by name
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, resource, id)
}

// NewArtifactNotFoundError reports a missing upstream stage artifact
func NewArtifactNotFoundError(path string) error {
	return fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
}

// NewMissingColumnError reports a table that lacks a required column
func NewMissingColumnError(table, column string) error {
	return fmt.Errorf("%w: %s has no column %q", ErrMissingColumn, table, column)
}

// NewShapeError reports an array whose dimensions disagree with what was expected
func NewShapeError(what string, got, want interface{}) error {
	return fmt.Errorf("%w: %s got %v, want %v", ErrShapeMismatch, what, got, want)
}

// NewValidationError reports a field that failed validation
func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

// IsNotFoundError reports whether err is any not-found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInputError reports whether err stems from malformed input rather than a bug
func IsInputError(err error) bool {
	return errors.Is(err, ErrShapeMismatch) ||
		errors.Is(err, ErrMissingColumn) ||
		errors.Is(err, ErrInvalidMapping) ||
		errors.Is(err, ErrUnknownOption)
}

package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. ErrNoVIN is the only failure the reconciliation engine
// propagates; everything else in the core degrades confidence instead.
var (
	ErrNoVIN            = errors.New("no usable VIN")
	ErrVehicleNotFound  = errors.New("vehicle not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrConflictNotFound = errors.New("conflict not found")
	ErrBadStateImport   = errors.New("invalid state import")
)

// ValidationError wraps a sentinel with field context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for single-condition failures. All mutating operations
// that return one of these leave state unchanged.
var (
	// ErrValidationFailed marks malformed input rejected before any mutation.
	ErrValidationFailed = errors.New("validation failed")
	// ErrDuplicateBarcode marks a barcode uniqueness violation.
	ErrDuplicateBarcode = errors.New("duplicate barcode")
	// ErrDuplicateCode marks a location code collision within a zone.
	ErrDuplicateCode = errors.New("duplicate location code")
	// ErrLocationOccupied marks an assign attempt that lost the race for a
	// slot. Callers may retry against another candidate.
	ErrLocationOccupied = errors.New("location occupied")
	// ErrZoneIncompatible marks a placement into a zone whose category
	// conflicts with the sample's declared storage requirement.
	ErrZoneIncompatible = errors.New("zone incompatible with storage requirement")
)

// NotFoundError is returned when an id reference cannot be resolved.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InvalidTransitionError reports a state-machine violation. Non-retryable;
// the operation had no side effects.
type InvalidTransitionError struct {
	SampleID  string
	Current   SampleStatus
	Requested SampleStatus
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("sample %s: invalid transition %s -> %s", e.SampleID, e.Current, e.Requested)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

package interfaces

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	// ErrInvariantViolation is returned when bucket fields break a structural rule.
	ErrInvariantViolation = errors.New("bucket invariant violation")

	// ErrImmutableField is returned when an update tries to change an identity field.
	ErrImmutableField = errors.New("field is immutable")

	// ErrDuplicateName is returned when a bucket with the same name already exists.
	ErrDuplicateName = errors.New("bucket name already exists")

	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSigningFailure is returned when a provisioning payload cannot be signed.
	ErrSigningFailure = errors.New("signing failure")

	// ErrVerificationFailure is returned when a signed token is rejected.
	ErrVerificationFailure = errors.New("verification failure")

	// ErrMissingFields is returned when a verified payload lacks required fields.
	ErrMissingFields = errors.New("missing required fields")

	// ErrTransportFailure is returned when the intake endpoint could not be reached
	// or did not accept the envelope.
	ErrTransportFailure = errors.New("transport failure")

	// ErrRootPathConflict is returned when a generated root path is already taken.
	ErrRootPathConflict = errors.New("root path already in use")

	// ErrRootPathAssigned is returned when a bucket already has a root path.
	ErrRootPathAssigned = errors.New("root path already assigned")

	// ErrDuplicateInstance is returned when an instance for the root path exists.
	ErrDuplicateInstance = errors.New("bucket instance already exists")

	// ErrInvalidStateTransition is returned when a bucket is not in the state
	// the requested transition starts from.
	ErrInvalidStateTransition = errors.New("invalid bucket state transition")
)

// InvariantViolation describes which structural rule a bucket breaks.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvariantViolation, e.Reason)
}

func (e *InvariantViolation) Unwrap() error { return ErrInvariantViolation }

// ImmutableFieldViolation names the identity field an update tried to change.
type ImmutableFieldViolation struct {
	Field string
}

func (e *ImmutableFieldViolation) Error() string {
	return fmt.Sprintf("%s is immutable and cannot be modified", e.Field)
}

func (e *ImmutableFieldViolation) Unwrap() error { return ErrImmutableField }

// MissingFieldError lists every required field absent from a payload.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingFields, strings.Join(e.Fields, ", "))
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingFields }

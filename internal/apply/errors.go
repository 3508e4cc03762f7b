package apply

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the comparison does not exist
	ErrNotFound = errors.New("comparison not found")

	// ErrValidation matches every ValidationError
	ErrValidation = errors.New("apply validation failed")

	ErrNotReviewed = errors.New("comparison has not been reviewed")
	ErrNoChoices   = errors.New("no choices provided")
	ErrMissingPath = errors.New("local template file location is unknown")
)

// ValidationError reports an apply precondition that does not hold. Reason
// is one of ErrNotReviewed, ErrNoChoices or ErrMissingPath.
type ValidationError struct {
	Reason error
}

func (e *ValidationError) Error() string {
	return e.Reason.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// BackupError reports a failure to back up the local template
type BackupError struct {
	Path string
	Err  error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("could not back up %s: %v", e.Path, e.Err)
}

func (e *BackupError) Unwrap() error {
	return e.Err
}

// WriteError reports a failure to write the merged template
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("could not write file %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

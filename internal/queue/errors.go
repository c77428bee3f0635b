package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateJobID is returned by Enqueue when the identifier was used
	// before. Callers treat it as "already submitted".
	ErrDuplicateJobID = errors.New("duplicate job id")
	// ErrInvalidTransition is returned when Complete or Fail target a job that
	// is not active.
	ErrInvalidTransition = errors.New("invalid job state transition")
	// ErrJobNotFound is returned by transitions on an unknown job. It matches
	// ErrInvalidTransition as well.
	ErrJobNotFound = fmt.Errorf("%w: job not found", ErrInvalidTransition)
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
	// ErrUnsupportedBackend is returned by Open for an unknown backend name.
	ErrUnsupportedBackend = errors.New("unsupported queue backend")
)

func errMissing(field string) error {
	return fmt.Errorf("enqueue: %s is required", field)
}

func invalidTransition(jobID string, from, to State) error {
	return fmt.Errorf("%w: job %s is %s, cannot become %s", ErrInvalidTransition, jobID, from, to)
}

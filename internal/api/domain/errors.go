package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when no image job has the requested id
	ErrJobNotFound = errors.New("image job not found")

	// ErrInvalidFormat is returned when an upload fails the signature or size-floor checks
	ErrInvalidFormat = errors.New("invalid image format")

	// ErrTooLarge is returned when an upload exceeds the size ceiling
	ErrTooLarge = errors.New("image too large")

	// ErrAlreadyCompleted is returned when background removal is requested for a completed job
	ErrAlreadyCompleted = errors.New("image job already completed")

	// ErrAlreadyInProgress is returned when background removal is requested for a job being processed
	ErrAlreadyInProgress = errors.New("image job already in progress")

	// ErrUnprocessable is returned for failed jobs, which are never retried
	ErrUnprocessable = errors.New("image job cannot be processed")

	// ErrJobNotClaimable is returned by the store when the pending -> processing claim matches no row
	ErrJobNotClaimable = errors.New("image job not claimable or not in pending status")

	// ErrStatusChanged is returned when a guarded completion finds the job no longer in processing
	ErrStatusChanged = errors.New("image job status changed concurrently")

	// ErrProcessingFailed wraps a background remover failure after it has been persisted on the job
	ErrProcessingFailed = errors.New("background removal failed")
)

// ValidationError reports malformed input shape
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for field
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is or wraps a ValidationError
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// TransitionError returns the rejection for a background removal request against a job in status.
// It returns nil for pending jobs, which are the only ones allowed to proceed.
func TransitionError(status JobStatus) error {
	switch status {
	case JobStatusPending:
		return nil
	case JobStatusProcessing:
		return ErrAlreadyInProgress
	case JobStatusCompleted:
		return ErrAlreadyCompleted
	case JobStatusFailed:
		return ErrUnprocessable
	default:
		return fmt.Errorf("%w: unknown status %q", ErrUnprocessable, status)
	}
}

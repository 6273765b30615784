package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrJobNotFound        = errors.New("job not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidJobID       = errors.New("invalid job id")
	ErrNoFiles            = errors.New("no files to submit")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrLockHeld           = errors.New("lock already held")

	// Markers the transport can wrap to force a classification
	// regardless of status code.
	ErrRetryable    = errors.New("retryable")
	ErrNonRetryable = errors.New("non-retryable")
)

// RemoteError is the contractual failure shape of the remote batch API.
// The transport layer populates StatusCode and, when the server sent a
// Retry-After directive, RetryAfter. Whether it is transient is decided by
// the retry executor's classification, not here.
type RemoteError struct {
	Op         string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// ExhaustedError wraps the final failure after the retry executor has run
// out of attempts. The original cause is always preserved.
type ExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation exhausted after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ExhaustedError) Unwrap() error { return e.Cause }

// StatusCheckError reports a status check that failed even after retries.
// Never swallowed: the caller asked for a live answer.
type StatusCheckError struct {
	JobID string
	Cause error
}

func (e *StatusCheckError) Error() string {
	return fmt.Sprintf("status check for job %s failed: %v", e.JobID, e.Cause)
}

func (e *StatusCheckError) Unwrap() error { return e.Cause }

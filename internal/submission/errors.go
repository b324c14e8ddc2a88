package submission

import (
	"errors"
	"fmt"
)

// NotFoundError reports an absent problem or submission. The pipeline
// reports it to the caller and does not retry.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// ValidationError rejects input before any state mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError rejects an edit of a submission that already reached a
// terminal state. The record is left unchanged.
type ConflictError struct {
	SubmissionID int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("submission %d already processed", e.SubmissionID)
}

// DispatchError means the submission was persisted but the grading request
// could not be enqueued. The record stays pending and is eligible for a
// re-dispatch; the caller must be able to tell this apart from a rejection.
type DispatchError struct {
	SubmissionID int64
	Err          error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("failed to enqueue submission %d: %v", e.SubmissionID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsDispatchFailure(err error) bool {
	var de *DispatchError
	return errors.As(err, &de)
}

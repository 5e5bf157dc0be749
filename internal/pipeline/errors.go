package pipeline

import (
	"errors"
	"fmt"
)

// Pipeline errors.
var (
	// ErrCancelled indicates cooperative cancellation was observed.
	ErrCancelled = errors.New("job cancelled")

	// ErrDocumentNotFound indicates the backing clip document was still
	// missing after the bounded existence poll.
	ErrDocumentNotFound = errors.New("clip document not found")

	// ErrInvalidSource indicates the audio source kind does not support the
	// requested operation.
	ErrInvalidSource = errors.New("invalid audio source for requested operation")

	// ErrJobAlreadyRunning indicates a job is already active for this clip.
	ErrJobAlreadyRunning = errors.New("job already running for this clip")
)

// StageError wraps an error with stage context.
type StageError struct {
	StageID   string
	StageName string
	Err       error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (%s): %v", e.StageName, e.StageID, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError.
func NewStageError(stageID, stageName string, err error) *StageError {
	return &StageError{
		StageID:   stageID,
		StageName: stageName,
		Err:       err,
	}
}

// UploadError indicates the storage sink rejected the completion signal.
// The bytes may have flowed, but the object never became visible; the whole
// job must be resubmitted.
type UploadError struct {
	Key string
	Err error
}

// Error implements the error interface.
func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of %s failed: %v", e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *UploadError) Unwrap() error {
	return e.Err
}

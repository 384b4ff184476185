package orchestrator

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/lotlens/internal/processor"
)

// ErrMissingFile is returned when an upload carries no file. Nothing is
// staged or invoked in that case.
var ErrMissingFile = errors.New("no file provided")

// GenericFailureMessage is the only failure text shown to callers; the
// detailed cause stays in the server log.
const GenericFailureMessage = "Failed to process images"

// ProcessingFailedError wraps any failure between staging and
// collection: filesystem errors, spawn errors, non-zero exits and
// timeouts.
type ProcessingFailedError struct {
	RequestID string
	Stage     string
	ExitCode  int
	Stderr    string
	Err       error
}

func (e *ProcessingFailedError) Error() string {
	return fmt.Sprintf("processing failed during %s (request %s): %v", e.Stage, e.RequestID, e.Err)
}

func (e *ProcessingFailedError) Unwrap() error { return e.Err }

// CleanupError reports that staged input could not be removed. It is
// only ever logged.
type CleanupError struct {
	RequestID string
	Err       error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup of request %s failed: %v", e.RequestID, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

func newProcessingFailed(requestID, stage string, err error) *ProcessingFailedError {
	pfe := &ProcessingFailedError{RequestID: requestID, Stage: stage, ExitCode: -1, Err: err}
	var failed *processor.FailedError
	if errors.As(err, &failed) {
		pfe.ExitCode = failed.ExitCode
		pfe.Stderr = failed.Stderr
	}
	return pfe
}

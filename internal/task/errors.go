package task

import (
	"context"
	"errors"
	"fmt"
)

// Failure taxonomy. Adapters and tasks wrap these with %w so callers can
// classify a failure with errors.Is regardless of the message.
var (
	// Configuration errors: fatal, retrying cannot help.
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrCredentialsMissing   = fmt.Errorf("credentials missing: %w", ErrConfigurationMissing)

	// Transient faults: the caller may retry the whole run.
	ErrSourceUnavailable    = errors.New("source unavailable")
	ErrExtractionIncomplete = errors.New("extraction incomplete")

	// Legitimate empty-data conditions: retrying gives the same answer.
	ErrEmptyResult  = errors.New("empty result")
	ErrNoCandidates = errors.New("no candidates")
	ErrEmptyContent = errors.New("empty content")

	// Transform outcomes.
	ErrContentTooLarge   = errors.New("content too large")
	ErrGenerationFailure = errors.New("generation failure")

	// Orchestration errors.
	ErrCancelled     = errors.New("run cancelled")
	ErrInputsMissing = errors.New("task inputs missing")
)

// Failure is returned by the orchestrator when a run ends in the failed
// state. It records where the run was when it stopped.
type Failure struct {
	Phase  Phase
	TaskID string
	Err    error
}

func (f *Failure) Error() string {
	if f.TaskID == "" {
		return fmt.Sprintf("failed in %s: %v", f.Phase, f.Err)
	}
	return fmt.Sprintf("failed in %s (%s): %v", f.Phase, f.TaskID, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Reason returns the taxonomy sentinel the failure maps to, or nil when the
// error is outside the taxonomy.
func Reason(err error) error {
	for _, sentinel := range []error{
		ErrCredentialsMissing,
		ErrConfigurationMissing,
		ErrSourceUnavailable,
		ErrExtractionIncomplete,
		ErrEmptyResult,
		ErrNoCandidates,
		ErrEmptyContent,
		ErrContentTooLarge,
		ErrGenerationFailure,
		ErrCancelled,
		ErrInputsMissing,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

// Retryable reports whether re-running the whole chain with a fresh state
// could succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) || errors.Is(err, ErrExtractionIncomplete)
}

// Classify maps a raw task error into the taxonomy. Errors that already carry
// a sentinel pass through; a bare deadline becomes the phase's timeout
// failure; a cancelled parent becomes ErrCancelled.
func Classify(phase Phase, err error) error {
	if err == nil || Reason(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	case errors.Is(err, context.DeadlineExceeded):
		if phase == PhaseExtracting {
			return fmt.Errorf("%w: %v", ErrExtractionIncomplete, err)
		}
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	case phase == PhaseTransforming:
		return fmt.Errorf("%w: %v", ErrGenerationFailure, err)
	default:
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
}

package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSuccess is returned when a run finishes without a single usable capture.
	ErrNoSuccess = errors.New("no matchweek captured successfully")
	// ErrObjectNotFound is returned by blob stores for missing keys.
	ErrObjectNotFound = errors.New("object not found")
	// ErrEntryNotFound is returned by ledger lookups for matchweeks without a recorded outcome.
	ErrEntryNotFound = errors.New("ledger entry not found")
	// ErrUnexpectedStructure is returned when a page lacks the expected elements.
	ErrUnexpectedStructure = errors.New("unexpected page structure")
)

// SessionStartError reports that a browser could not be launched for a task.
type SessionStartError struct {
	Task Task
	Err  error
}

func (e *SessionStartError) Error() string {
	return fmt.Sprintf("start session for %s: %v", e.Task, e.Err)
}

func (e *SessionStartError) Unwrap() error { return e.Err }

// ExtractionError reports a navigation, timeout, crash, or parse failure.
type ExtractionError struct {
	Task Task
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Task, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// SinkWriteError reports that a capture could not be persisted.
type SinkWriteError struct {
	Task Task
	Err  error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("write capture for %s: %v", e.Task, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

// RunAbortedError reports that a run was cancelled before every task started.
type RunAbortedError struct {
	Aborted int
	Err     error
}

func (e *RunAbortedError) Error() string {
	return fmt.Sprintf("run aborted with %d task(s) not started: %v", e.Aborted, e.Err)
}

func (e *RunAbortedError) Unwrap() error { return e.Err }

// Phase names the stage at which a task error occurred.
func Phase(err error) string {
	var (
		startErr *SessionStartError
		extErr   *ExtractionError
		sinkErr  *SinkWriteError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &startErr):
		return "session_start"
	case errors.As(err, &extErr):
		return "extraction"
	case errors.As(err, &sinkErr):
		return "sink_write"
	default:
		return "unknown"
	}
}

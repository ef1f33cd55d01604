package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
)

// Stage denotes the lifecycle milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart  Stage = "RUN_START"
	StageRunDone   Stage = "RUN_DONE"
	StageTaskStart Stage = "TASK_START"
	StageTaskDone  Stage = "TASK_DONE"
	StageReused    Stage = "TASK_REUSED"
)

// Event captures a single lifecycle milestone of a run.
type Event struct {
	RunID     string
	TS        time.Time
	Stage     Stage
	Season    string
	Matchweek int
	// Worker is the 1-based slot that executed the task.
	Worker int
	// Status is set on TASK_DONE.
	Status capture.Status
	// Phase names where a failed task broke (session_start, extraction, sink_write).
	Phase string
	// Matches counts captured match pages; Tasks counts planned tasks on RUN_START.
	Matches int
	Tasks   int
	Dur     time.Duration
	Note    string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageTaskStart, StageReused:
		if e.Matchweek < 1 {
			return errors.New("task events require a matchweek")
		}
	case StageTaskDone:
		if e.Matchweek < 1 {
			return errors.New("task events require a matchweek")
		}
		if e.Status == "" {
			return errors.New("task done requires status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// TaskDone builds the completion event for a task result.
func TaskDone(runID string, r capture.Result) Event {
	evt := Event{
		RunID:     runID,
		TS:        r.Finished,
		Stage:     StageTaskDone,
		Season:    r.Task.Season,
		Matchweek: r.Task.Matchweek,
		Worker:    r.Worker,
		Status:    r.Status,
		Phase:     capture.Phase(r.Err),
		Dur:       r.Duration(),
	}
	if evt.TS.IsZero() {
		evt.TS = time.Now().UTC()
	}
	if r.Capture != nil {
		evt.Matches = len(r.Capture.Matches)
	}
	if r.Err != nil {
		evt.Note = r.Err.Error()
	}
	return evt
}

package sinks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
	"github.com/JakeFAU/matchweek-ingest/internal/progress"
)

// RunSnapshot is the live view of the most recent run.
type RunSnapshot struct {
	RunID      string         `json:"run_id"`
	Season     string         `json:"season"`
	Tasks      int            `json:"tasks"`
	Running    []int          `json:"running"`
	Succeeded  []int          `json:"succeeded"`
	Failed     map[int]string `json:"failed"`
	Aborted    []int          `json:"aborted"`
	Reused     []int          `json:"reused"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Tracker keeps a snapshot of the latest run for status endpoints.
type Tracker struct {
	mu      sync.RWMutex
	current *RunSnapshot
	running map[int]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{running: make(map[int]struct{})}
}

// Consume folds events into the snapshot. Events from older runs are ignored.
func (t *Tracker) Consume(_ context.Context, batch []progress.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		if evt.Stage == progress.StageRunStart {
			t.current = &RunSnapshot{
				RunID:     evt.RunID,
				Season:    evt.Season,
				Tasks:     evt.Tasks,
				Failed:    make(map[int]string),
				StartedAt: evt.TS,
			}
			t.running = make(map[int]struct{})
			continue
		}
		if t.current == nil || evt.RunID != t.current.RunID {
			continue
		}
		switch evt.Stage {
		case progress.StageTaskStart:
			t.running[evt.Matchweek] = struct{}{}
		case progress.StageReused:
			t.current.Reused = append(t.current.Reused, evt.Matchweek)
		case progress.StageTaskDone:
			delete(t.running, evt.Matchweek)
			switch evt.Status {
			case capture.StatusSucceeded:
				t.current.Succeeded = append(t.current.Succeeded, evt.Matchweek)
			case capture.StatusAborted:
				t.current.Aborted = append(t.current.Aborted, evt.Matchweek)
			default:
				t.current.Failed[evt.Matchweek] = evt.Note
			}
		case progress.StageRunDone:
			ts := evt.TS
			t.current.FinishedAt = &ts
		}
	}
	return nil
}

// Snapshot returns a copy of the latest run, if any.
func (t *Tracker) Snapshot() (RunSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return RunSnapshot{}, false
	}
	snap := *t.current
	snap.Running = make([]int, 0, len(t.running))
	for mw := range t.running {
		snap.Running = append(snap.Running, mw)
	}
	sort.Ints(snap.Running)
	snap.Succeeded = sortedCopy(t.current.Succeeded)
	snap.Aborted = sortedCopy(t.current.Aborted)
	snap.Reused = sortedCopy(t.current.Reused)
	snap.Failed = make(map[int]string, len(t.current.Failed))
	for k, v := range t.current.Failed {
		snap.Failed[k] = v
	}
	return snap, true
}

// Close implements progress.Sink; it performs no action.
func (t *Tracker) Close(context.Context) error {
	return nil
}

func sortedCopy(in []int) []int {
	out := append([]int{}, in...)
	sort.Ints(out)
	return out
}

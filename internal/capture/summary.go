package capture

import (
	"sort"
	"time"
)

// Summary aggregates the outcome of one run. It is owned by a single
// goroutine while the run is in progress.
type Summary struct {
	RunID      string
	Season     string
	Workers    int
	Requested  []int
	Succeeded  []int
	Reused     []int
	Failed     map[int]string
	Aborted    []int
	URIs       map[int]string
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewSummary creates an empty summary for a run.
func NewSummary(runID, season string, workers int, requested []int, started time.Time) Summary {
	return Summary{
		RunID:     runID,
		Season:    season,
		Workers:   workers,
		Requested: append([]int(nil), requested...),
		Failed:    make(map[int]string),
		URIs:      make(map[int]string),
		StartedAt: started,
	}
}

// Add folds a task result into the summary.
func (s *Summary) Add(r Result) {
	mw := r.Task.Matchweek
	switch r.Status {
	case StatusSucceeded:
		s.Succeeded = append(s.Succeeded, mw)
		if r.URI != "" {
			s.URIs[mw] = r.URI
		}
	case StatusAborted:
		s.Aborted = append(s.Aborted, mw)
	default:
		reason := "unknown failure"
		if r.Err != nil {
			reason = r.Err.Error()
		}
		s.Failed[mw] = reason
	}
}

// AddReused records a matchweek whose existing sink entry was kept.
func (s *Summary) AddReused(matchweek int, uri string) {
	s.Reused = append(s.Reused, matchweek)
	if uri != "" {
		s.URIs[matchweek] = uri
	}
}

// Finish stamps the end time and sorts the matchweek lists.
func (s *Summary) Finish(at time.Time) {
	s.FinishedAt = at
	sort.Ints(s.Succeeded)
	sort.Ints(s.Reused)
	sort.Ints(s.Aborted)
}

// FailedMatchweeks returns the failed matchweeks in ascending order.
func (s Summary) FailedMatchweeks() []int {
	out := make([]int, 0, len(s.Failed))
	for mw := range s.Failed {
		out = append(out, mw)
	}
	sort.Ints(out)
	return out
}

// Usable reports whether the run left at least one capture in the sink.
func (s Summary) Usable() bool {
	return len(s.Succeeded)+len(s.Reused) > 0
}

// Available returns every matchweek with a usable capture, sorted.
func (s Summary) Available() []int {
	out := append(append([]int(nil), s.Succeeded...), s.Reused...)
	sort.Ints(out)
	return out
}

// Duration reports the wall time of the run.
func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

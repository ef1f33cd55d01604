// Package capturetest provides in-memory session factories for tests of the
// worker pool and run coordinator.
package capturetest

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
)

// Stats reports how sessions were used.
type Stats struct {
	Acquired       int
	Released       int
	Live           int
	MaxLive        int
	DoubleReleases int
}

// Factory is a capture.SessionFactory whose sessions run ExtractFunc.
type Factory struct {
	// AcquireErr, when set, is consulted with the 1-based acquisition number.
	AcquireErr func(n int) error
	// ExtractFunc defaults to NewCapture with ten matches.
	ExtractFunc func(ctx context.Context, task capture.Task) (capture.Capture, error)

	mu    sync.Mutex
	stats Stats
}

// Acquire implements capture.SessionFactory.
func (f *Factory) Acquire(ctx context.Context) (capture.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.stats.Acquired + 1
	if f.AcquireErr != nil {
		if err := f.AcquireErr(n); err != nil {
			return nil, err
		}
	}
	f.stats.Acquired = n
	f.stats.Live++
	f.stats.MaxLive = max(f.stats.MaxLive, f.stats.Live)
	return &Session{factory: f}, nil
}

// Stats returns a snapshot of session usage.
func (f *Factory) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// Live reports the number of unreleased sessions.
func (f *Factory) Live() int {
	return f.Stats().Live
}

// Session is a fake browser session.
type Session struct {
	factory  *Factory
	mu       sync.Mutex
	released bool
}

// Extract implements capture.Session.
func (s *Session) Extract(ctx context.Context, task capture.Task) (capture.Capture, error) {
	if s.factory.ExtractFunc != nil {
		return s.factory.ExtractFunc(ctx, task)
	}
	return NewCapture(task, 10), nil
}

// Release implements capture.Session.
func (s *Session) Release() {
	s.mu.Lock()
	already := s.released
	s.released = true
	s.mu.Unlock()

	s.factory.mu.Lock()
	defer s.factory.mu.Unlock()
	if already {
		s.factory.stats.DoubleReleases++
		return
	}
	s.factory.stats.Released++
	s.factory.stats.Live--
}

// NewCapture builds a capture with n synthetic matches.
func NewCapture(task capture.Task, n int) capture.Capture {
	c := capture.Capture{
		Season:     task.Season,
		Matchweek:  task.Matchweek,
		CapturedAt: time.Date(2025, 8, 18, 9, 0, 0, 0, time.UTC),
	}
	for i := 0; i < n; i++ {
		home, away := i%3, (i+1)%2
		possession := 50.0 + float64(i)
		c.Matches = append(c.Matches, capture.Match{
			MatchID:   1000*task.Matchweek + i,
			URL:       "https://example.test/match",
			Season:    task.Season,
			Matchweek: task.Matchweek,
			Info: capture.MatchInfo{
				HomeTeam:  " Home FC ",
				AwayTeam:  "Away United",
				HomeScore: &home,
				AwayScore: &away,
				Venue:     "Ground",
			},
			Statistics: map[string]capture.Stat{
				"Possession %": {Home: "55%", Away: "45%", HomeParsed: &possession},
			},
			DetailedStatistics: map[string]map[string]capture.Stat{
				"attack": {"Shots on target": {Home: "5 (60%)", Away: "3"}},
			},
			ScrapedAt: c.CapturedAt,
		})
	}
	return c
}

package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
)

const pageTemplate = `<html><body>
<span class="match-header__team-name">Home %[1]d</span>
<div class="match-header__score">1 - 0</div>
<span class="match-header__team-name">Away %[1]d</span>
</body></html>`

type fakeSchedule struct {
	ids []int
	err error
}

func (s fakeSchedule) MatchIDs(string, int) ([]int, error) {
	return s.ids, s.err
}

type fakeLoader struct {
	mu    sync.Mutex
	fail  map[string]error
	block map[string]bool
	seen  []string
}

func (l *fakeLoader) Load(ctx context.Context, url string) (string, error) {
	l.mu.Lock()
	l.seen = append(l.seen, url)
	err := l.fail[url]
	block := l.block[url]
	l.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	var id int
	if _, scanErr := fmt.Sscanf(url, "http://pl.test/match/%d", &id); scanErr != nil {
		return "", scanErr
	}
	return fmt.Sprintf(pageTemplate, id), nil
}

func testConfig() Config {
	return Config{BaseURL: "http://pl.test", MinMatches: 1}.withDefaults()
}

func newTestSession(cfg Config, schedule Schedule, loader pageLoader, alive func() error) (*Session, *atomic.Int32) {
	var released atomic.Int32
	if alive == nil {
		alive = func() error { return nil }
	}
	cfg.RequestInterval = 0
	s := newSession(cfg, schedule, loader, alive, func() { released.Add(1) }, zap.NewNop())
	return s, &released
}

func TestSessionExtractCapturesEveryMatch(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	s, _ := newTestSession(testConfig(), fakeSchedule{ids: []int{100, 101, 102}}, loader, nil)

	got, err := s.Extract(context.Background(), capture.Task{Season: "2025/26", Matchweek: 1})
	require.NoError(t, err)
	require.Len(t, got.Matches, 3)
	assert.Empty(t, got.MissingMatchIDs)
	assert.Equal(t, "2025/26", got.Season)
	assert.Equal(t, 1, got.Matchweek)
	assert.False(t, got.CapturedAt.IsZero())

	first := got.Matches[0]
	assert.Equal(t, 100, first.MatchID)
	assert.Equal(t, "http://pl.test/match/100", first.URL)
	assert.Equal(t, "Home 100", first.Info.HomeTeam)
	assert.Equal(t, 1, first.Matchweek)
}

func TestSessionExtractRecordsMissingPages(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{fail: map[string]error{
		"http://pl.test/match/101": errors.New("navigation timeout"),
	}}
	s, _ := newTestSession(testConfig(), fakeSchedule{ids: []int{100, 101, 102}}, loader, nil)

	got, err := s.Extract(context.Background(), capture.Task{Season: "2025/26", Matchweek: 2})
	require.NoError(t, err)
	assert.Len(t, got.Matches, 2)
	assert.Equal(t, []int{101}, got.MissingMatchIDs)
}

func TestSessionExtractFailsBelowMinimum(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MinMatches = 2
	loader := &fakeLoader{fail: map[string]error{
		"http://pl.test/match/100": errors.New("boom"),
		"http://pl.test/match/101": errors.New("boom"),
	}}
	s, _ := newTestSession(cfg, fakeSchedule{ids: []int{100, 101, 102}}, loader, nil)

	_, err := s.Extract(context.Background(), capture.Task{Season: "2025/26", Matchweek: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "captured 1 of 3 matches")
	assert.Contains(t, err.Error(), "100,101")
}

func TestSessionExtractStopsWhenBrowserDies(t *testing.T) {
	t.Parallel()

	dead := errors.New("target closed")
	loader := &fakeLoader{fail: map[string]error{"http://pl.test/match/100": errors.New("websocket closed")}}
	s, _ := newTestSession(testConfig(), fakeSchedule{ids: []int{100, 101}}, loader, func() error { return dead })

	_, err := s.Extract(context.Background(), capture.Task{Season: "2025/26", Matchweek: 4})
	require.ErrorIs(t, err, dead)
	assert.Contains(t, err.Error(), "browser exited")
	assert.Len(t, loader.seen, 1)
}

func TestSessionExtractHonorsTimeout(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{block: map[string]bool{"http://pl.test/match/101": true}}
	s, _ := newTestSession(testConfig(), fakeSchedule{ids: []int{100, 101, 102}}, loader, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Extract(ctx, capture.Task{Season: "2025/26", Matchweek: 5})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "interrupted after 1 of 3")
}

func TestSessionExtractUnknownSeason(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(testConfig(), fakeSchedule{err: errors.New("unknown season")}, &fakeLoader{}, nil)
	_, err := s.Extract(context.Background(), capture.Task{Season: "1888/89", Matchweek: 1})
	require.ErrorContains(t, err, "resolve match ids")
}

func TestSessionReleaseOnce(t *testing.T) {
	t.Parallel()

	s, released := newTestSession(testConfig(), fakeSchedule{}, &fakeLoader{}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Release()
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, released.Load())
}

func TestMatchURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://www.premierleague.com/match/2561895", MatchURL(DefaultBaseURL, 2561895))
	assert.Equal(t, "http://x/match/1", MatchURL("http://x/", 1))
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 1920, cfg.WindowWidth)
	assert.Equal(t, DefaultStartTimeout, cfg.StartTimeout)
	assert.Equal(t, 1, cfg.MinMatches)

	_, err := NewFactory(Config{MinMatches: 11}, fakeSchedule{}, nil)
	require.Error(t, err)
	_, err = NewFactory(Config{}, nil, nil)
	require.Error(t, err)
}

// acquireWithin runs Acquire and fails the test if it does not return in time.
func acquireWithin(t *testing.T, f *Factory, limit time.Duration) (capture.Session, error) {
	t.Helper()
	type outcome struct {
		session capture.Session
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		s, err := f.Acquire(context.Background())
		done <- outcome{s, err}
	}()
	select {
	case o := <-done:
		return o.session, o.err
	case <-time.After(limit):
		t.Fatalf("Acquire did not return within %s", limit)
		return nil, nil
	}
}

func TestFactoryAcquireFailureCleansUp(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cfg := Config{
		ExecPath:     "/nonexistent/chrome-binary",
		ProfileRoot:  root,
		StartTimeout: 2 * time.Second,
	}
	f, err := NewFactory(cfg, fakeSchedule{}, zap.NewNop())
	require.NoError(t, err)

	// Repeated failures must not wedge the factory.
	for range 3 {
		session, err := acquireWithin(t, f, cfg.StartTimeout+closeTimeout+5*time.Second)
		require.Error(t, err)
		assert.Nil(t, session)
		assert.Contains(t, err.Error(), "launch browser")
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "profile directory should be removed")
}

func TestFactoryAcquireStartTimeout(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	// A "browser" that runs but never announces its DevTools endpoint.
	dir := t.TempDir()
	exec := filepath.Join(dir, "silent-chrome")
	require.NoError(t, os.WriteFile(exec, []byte("#!/bin/sh\nexec sleep 60\n"), 0o755))

	root := t.TempDir()
	cfg := Config{
		ExecPath:     exec,
		ProfileRoot:  root,
		StartTimeout: 500 * time.Millisecond,
	}
	f, err := NewFactory(cfg, fakeSchedule{}, zap.NewNop())
	require.NoError(t, err)

	start := time.Now()
	session, err := acquireWithin(t, f, cfg.StartTimeout+closeTimeout+5*time.Second)
	require.Error(t, err)
	assert.Nil(t, session)
	assert.Contains(t, err.Error(), "did not start within")
	assert.Less(t, time.Since(start), cfg.StartTimeout+closeTimeout+time.Second)

	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(root)
		return err == nil && len(entries) == 0
	}, 5*time.Second, 50*time.Millisecond, "profile directory should be removed")
}

func TestFactoryAcquireHonoursCallerContext(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	dir := t.TempDir()
	exec := filepath.Join(dir, "silent-chrome")
	require.NoError(t, os.WriteFile(exec, []byte("#!/bin/sh\nexec sleep 60\n"), 0o755))

	f, err := NewFactory(Config{
		ExecPath:     exec,
		ProfileRoot:  t.TempDir(),
		StartTimeout: time.Minute,
	}, fakeSchedule{}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := f.Acquire(ctx)
		done <- err
	}()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(closeTimeout + 5*time.Second):
		t.Fatal("Acquire ignored the caller's deadline")
	}
}

func TestNoopFactory(t *testing.T) {
	t.Parallel()

	_, err := Noop{}.Acquire(context.Background())
	require.ErrorIs(t, err, ErrDisabled)
}

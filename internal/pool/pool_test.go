package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/matchweek-ingest/internal/browser"
	"github.com/JakeFAU/matchweek-ingest/internal/capture"
	"github.com/JakeFAU/matchweek-ingest/internal/capture/capturetest"
	"github.com/JakeFAU/matchweek-ingest/internal/season"
)

func tasksFor(season string, mws ...int) []capture.Task {
	out := make([]capture.Task, 0, len(mws))
	for _, mw := range mws {
		out = append(out, capture.Task{Season: season, Matchweek: mw})
	}
	return out
}

func collect(t *testing.T, ch <-chan capture.Result) map[int]capture.Result {
	t.Helper()
	return collectWithin(t, ch, 5*time.Second)
}

func collectWithin(t *testing.T, ch <-chan capture.Result, limit time.Duration) map[int]capture.Result {
	t.Helper()
	out := make(map[int]capture.Result)
	timeout := time.After(limit)
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return out
			}
			_, dup := out[r.Task.Matchweek]
			require.Falsef(t, dup, "duplicate result for matchweek %d", r.Task.Matchweek)
			out[r.Task.Matchweek] = r
		case <-timeout:
			t.Fatal("results channel not closed")
		}
	}
}

func TestNewRejectsZeroWorkers(t *testing.T) {
	t.Parallel()

	_, err := New(&capturetest.Factory{}, Config{Workers: 0})
	require.ErrorIs(t, err, ErrNoWorkers)
	_, err = New(nil, Config{Workers: 1})
	require.Error(t, err)
}

func TestRunBoundsLiveSessions(t *testing.T) {
	t.Parallel()

	factory := &capturetest.Factory{
		ExtractFunc: func(_ context.Context, task capture.Task) (capture.Capture, error) {
			time.Sleep(5 * time.Millisecond)
			return capturetest.NewCapture(task, 10), nil
		},
	}
	p, err := New(factory, Config{Workers: 3})
	require.NoError(t, err)

	tasks := tasksFor("2025/26", 1, 2, 3, 4, 5, 6, 7)
	results := collect(t, p.Run(context.Background(), tasks, nil))

	require.Len(t, results, len(tasks))
	for _, r := range results {
		assert.Equal(t, capture.StatusSucceeded, r.Status)
		require.NotNil(t, r.Capture)
		assert.Len(t, r.Capture.Matches, 10)
		assert.GreaterOrEqual(t, r.Worker, 1)
		assert.LessOrEqual(t, r.Worker, 3)
	}
	stats := factory.Stats()
	assert.LessOrEqual(t, stats.MaxLive, 3)
	assert.Equal(t, stats.Acquired, stats.Released)
	assert.Zero(t, stats.Live)
	assert.Zero(t, stats.DoubleReleases)
}

func TestRunUsesFewerSlotsThanTasks(t *testing.T) {
	t.Parallel()

	factory := &capturetest.Factory{}
	p, err := New(factory, Config{Workers: 8})
	require.NoError(t, err)

	results := collect(t, p.Run(context.Background(), tasksFor("2025/26", 1, 2), nil))
	require.Len(t, results, 2)
	assert.LessOrEqual(t, factory.Stats().MaxLive, 2)
}

func TestRunIsolatesExtractionFailures(t *testing.T) {
	t.Parallel()

	failing := map[int]bool{2: true, 5: true}
	factory := &capturetest.Factory{
		ExtractFunc: func(_ context.Context, task capture.Task) (capture.Capture, error) {
			if failing[task.Matchweek] {
				return capture.Capture{}, errors.New("navigation timeout")
			}
			return capturetest.NewCapture(task, 10), nil
		},
	}
	p, err := New(factory, Config{Workers: 2})
	require.NoError(t, err)

	results := collect(t, p.Run(context.Background(), tasksFor("2025/26", 1, 2, 3, 4, 5), nil))
	require.Len(t, results, 5)
	for mw, r := range results {
		if failing[mw] {
			assert.Equal(t, capture.StatusFailed, r.Status)
			var extErr *capture.ExtractionError
			require.ErrorAs(t, r.Err, &extErr)
			assert.Equal(t, mw, extErr.Task.Matchweek)
			continue
		}
		assert.Equal(t, capture.StatusSucceeded, r.Status)
	}
	assert.Equal(t, 5, factory.Stats().Released)
}

func TestRunReportsSessionStartErrors(t *testing.T) {
	t.Parallel()

	factory := &capturetest.Factory{
		AcquireErr: func(int) error { return errors.New("chrome not found") },
	}
	p, err := New(factory, Config{Workers: 2})
	require.NoError(t, err)

	results := collect(t, p.Run(context.Background(), tasksFor("2025/26", 1, 2), nil))
	for _, r := range results {
		var startErr *capture.SessionStartError
		require.ErrorAs(t, r.Err, &startErr)
		assert.Equal(t, capture.StatusFailed, r.Status)
	}
	assert.Zero(t, factory.Stats().Released)
}

func TestRunCompletesWhenChromeIsMissing(t *testing.T) {
	t.Parallel()

	catalog, err := season.NewCatalog(nil)
	require.NoError(t, err)
	factory, err := browser.NewFactory(browser.Config{
		ExecPath:     "/nonexistent/chrome",
		ProfileRoot:  t.TempDir(),
		StartTimeout: 2 * time.Second,
	}, catalog, nil)
	require.NoError(t, err)

	p, err := New(factory, Config{Workers: 2, TaskTimeout: 5 * time.Second})
	require.NoError(t, err)

	results := collectWithin(t, p.Run(context.Background(), tasksFor("2025/26", 1, 2, 3), nil), 30*time.Second)
	require.Len(t, results, 3)
	for mw, r := range results {
		assert.Equalf(t, capture.StatusFailed, r.Status, "matchweek %d", mw)
		assert.Equalf(t, "session_start", capture.Phase(r.Err), "matchweek %d", mw)
	}
}

func TestRunCommitsAfterRelease(t *testing.T) {
	t.Parallel()

	factory := &capturetest.Factory{}
	p, err := New(factory, Config{Workers: 1})
	require.NoError(t, err)

	var liveAtCommit []int
	var mu sync.Mutex
	commit := func(_ context.Context, c capture.Capture) (capture.WriteReceipt, error) {
		mu.Lock()
		defer mu.Unlock()
		liveAtCommit = append(liveAtCommit, factory.Live())
		if c.Matchweek == 2 {
			return capture.WriteReceipt{}, errors.New("bucket unavailable")
		}
		return capture.WriteReceipt{URI: "memory://mw", ContentHash: "abc"}, nil
	}

	results := collect(t, p.Run(context.Background(), tasksFor("2025/26", 1, 2), commit))
	assert.Equal(t, []int{0, 0}, liveAtCommit)

	assert.Equal(t, capture.StatusSucceeded, results[1].Status)
	assert.Equal(t, "memory://mw", results[1].URI)
	assert.Equal(t, "abc", results[1].ContentHash)

	assert.Equal(t, capture.StatusFailed, results[2].Status)
	var sinkErr *capture.SinkWriteError
	require.ErrorAs(t, results[2].Err, &sinkErr)
	assert.Nil(t, results[2].Capture)
}

func TestRunRecoversPanics(t *testing.T) {
	t.Parallel()

	factory := &capturetest.Factory{
		ExtractFunc: func(_ context.Context, task capture.Task) (capture.Capture, error) {
			if task.Matchweek == 1 {
				panic("nil map write")
			}
			return capturetest.NewCapture(task, 10), nil
		},
	}
	p, err := New(factory, Config{Workers: 1})
	require.NoError(t, err)

	commit := func(_ context.Context, c capture.Capture) (capture.WriteReceipt, error) {
		if c.Matchweek == 2 {
			panic("commit exploded")
		}
		return capture.WriteReceipt{}, nil
	}
	results := collect(t, p.Run(context.Background(), tasksFor("2025/26", 1, 2, 3), commit))

	var extErr *capture.ExtractionError
	require.ErrorAs(t, results[1].Err, &extErr)
	assert.Contains(t, extErr.Error(), "nil map write")
	var sinkErr *capture.SinkWriteError
	require.ErrorAs(t, results[2].Err, &sinkErr)
	assert.Equal(t, capture.StatusSucceeded, results[3].Status)

	stats := factory.Stats()
	assert.Equal(t, 3, stats.Released)
	assert.Zero(t, stats.Live)
}

func TestRunTaskTimeout(t *testing.T) {
	t.Parallel()

	factory := &capturetest.Factory{
		ExtractFunc: func(ctx context.Context, task capture.Task) (capture.Capture, error) {
			if task.Matchweek == 2 {
				<-ctx.Done()
				return capture.Capture{}, ctx.Err()
			}
			return capturetest.NewCapture(task, 10), nil
		},
	}
	p, err := New(factory, Config{Workers: 2, TaskTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	results := collect(t, p.Run(context.Background(), tasksFor("2025/26", 1, 2, 3), nil))
	require.Len(t, results, 3)
	assert.Equal(t, capture.StatusSucceeded, results[1].Status)
	assert.Equal(t, capture.StatusSucceeded, results[3].Status)
	assert.Equal(t, capture.StatusFailed, results[2].Status)
	require.ErrorIs(t, results[2].Err, context.DeadlineExceeded)
}

func TestRunCancellationAbortsPendingTasks(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	unblock := make(chan struct{})
	factory := &capturetest.Factory{
		ExtractFunc: func(ctx context.Context, task capture.Task) (capture.Capture, error) {
			if task.Matchweek == 1 {
				close(started)
				<-unblock
				// The run context is cancelled but in-flight work keeps a live context.
				if err := ctx.Err(); err != nil {
					return capture.Capture{}, err
				}
			}
			return capturetest.NewCapture(task, 10), nil
		},
	}
	p, err := New(factory, Config{Workers: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch := p.Run(ctx, tasksFor("2025/26", 1, 2, 3), nil)
	<-started
	cancel()
	close(unblock)

	results := collect(t, ch)
	require.Len(t, results, 3)
	assert.Equal(t, capture.StatusSucceeded, results[1].Status)
	for _, mw := range []int{2, 3} {
		assert.Equal(t, capture.StatusAborted, results[mw].Status)
		require.ErrorIs(t, results[mw].Err, context.Canceled)
	}
	assert.Equal(t, 1, factory.Stats().Acquired)
}

func TestRunEmptyTaskList(t *testing.T) {
	t.Parallel()

	p, err := New(&capturetest.Factory{}, Config{Workers: 2})
	require.NoError(t, err)
	assert.Empty(t, collect(t, p.Run(context.Background(), nil, nil)))
}

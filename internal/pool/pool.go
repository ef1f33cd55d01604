// Package pool runs capture tasks on a bounded set of worker slots. Each slot
// owns at most one browser session at a time and every submitted task yields
// exactly one result.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
	"github.com/JakeFAU/matchweek-ingest/internal/progress"
	"github.com/JakeFAU/matchweek-ingest/internal/queue/memory"
)

// ErrNoWorkers is returned when the worker bound is below one.
var ErrNoWorkers = errors.New("worker bound must be >= 1")

// Config controls pool sizing and per-task limits.
type Config struct {
	Workers int
	// TaskTimeout bounds one task including session start and commit. Zero
	// disables the bound.
	TaskTimeout time.Duration
}

// Commit persists a successful capture. It runs inside the worker slot after
// the browser session has been released.
type Commit func(ctx context.Context, c capture.Capture) (capture.WriteReceipt, error)

// Option customizes a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProgress reports task lifecycle events for the given run.
func WithProgress(emitter progress.Emitter, runID string) Option {
	return func(p *Pool) {
		if emitter != nil {
			p.emitter = emitter
			p.runID = runID
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		if now != nil {
			p.now = now
		}
	}
}

// Pool executes capture tasks with bounded concurrency.
type Pool struct {
	factory capture.SessionFactory
	cfg     Config
	logger  *zap.Logger
	emitter progress.Emitter
	runID   string
	now     func() time.Time
}

// New validates cfg and builds a pool over the session factory.
func New(factory capture.SessionFactory, cfg Config, opts ...Option) (*Pool, error) {
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrNoWorkers, cfg.Workers)
	}
	if factory == nil {
		return nil, errors.New("pool requires a session factory")
	}
	p := &Pool{
		factory: factory,
		cfg:     cfg,
		logger:  zap.NewNop(),
		emitter: progress.Nop{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("pool")
	return p, nil
}

// Run executes every task and returns a channel that yields exactly one
// result per task, in completion order, and is closed afterwards.
//
// Cancelling ctx stops slots from picking up new tasks; tasks already running
// continue until they finish or hit TaskTimeout. Tasks never started are
// reported with StatusAborted.
func (p *Pool) Run(ctx context.Context, tasks []capture.Task, commit Commit) <-chan capture.Result {
	results := make(chan capture.Result, len(tasks))
	q := memory.NewQueue(len(tasks))
	for _, task := range tasks {
		// Capacity equals len(tasks), so this never blocks.
		_ = q.Enqueue(context.Background(), task)
	}
	q.Close()

	workers := min(p.cfg.Workers, len(tasks))
	var wg sync.WaitGroup
	for slot := 1; slot <= workers; slot++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx, slot, q, commit, results)
		}()
	}
	go func() {
		wg.Wait()
		for _, task := range q.Drain() {
			results <- p.aborted(task, ctx.Err())
		}
		close(results)
	}()
	return results
}

func (p *Pool) work(ctx context.Context, slot int, q *memory.Queue, commit Commit, results chan<- capture.Result) {
	for {
		task, err := q.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, memory.ErrClosed) {
				p.logger.Debug("worker slot stopping", zap.Int("worker", slot), zap.Error(err))
			}
			return
		}
		results <- p.execute(ctx, slot, task, commit)
	}
}

func (p *Pool) execute(runCtx context.Context, slot int, task capture.Task, commit Commit) (res capture.Result) {
	res = capture.Result{Task: task, Worker: slot, Started: p.now()}
	p.emitter.Emit(progress.Event{
		RunID:     p.runID,
		TS:        res.Started,
		Stage:     progress.StageTaskStart,
		Season:    task.Season,
		Matchweek: task.Matchweek,
		Worker:    slot,
	})

	// In-flight tasks are not interrupted by run cancellation.
	taskCtx := context.WithoutCancel(runCtx)
	cancel := func() {}
	if p.cfg.TaskTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(taskCtx, p.cfg.TaskTimeout)
	}
	defer cancel()
	defer func() {
		res.Finished = p.now()
		p.emitter.Emit(progress.TaskDone(p.runID, res))
	}()

	out, err := p.capture(taskCtx, task)
	if err != nil {
		res.Status = capture.StatusFailed
		res.Err = err
		return res
	}
	if commit != nil {
		receipt, err := p.commit(taskCtx, task, out, commit)
		if err != nil {
			res.Status = capture.StatusFailed
			res.Err = err
			return res
		}
		res.URI = receipt.URI
		res.ContentHash = receipt.ContentHash
	}
	res.Status = capture.StatusSucceeded
	res.Capture = &out
	return res
}

// capture acquires a session, extracts, and releases the session on every
// path including panics.
func (p *Pool) capture(ctx context.Context, task capture.Task) (out capture.Capture, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("capture panic recovered", zap.Stringer("task", task), zap.Any("panic", r))
			out = capture.Capture{}
			err = &capture.ExtractionError{Task: task, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	session, err := p.factory.Acquire(ctx)
	if err != nil {
		return capture.Capture{}, &capture.SessionStartError{Task: task, Err: err}
	}
	defer session.Release()

	out, err = session.Extract(ctx, task)
	if err != nil {
		return capture.Capture{}, &capture.ExtractionError{Task: task, Err: err}
	}
	return out, nil
}

func (p *Pool) commit(ctx context.Context, task capture.Task, c capture.Capture, commit Commit) (receipt capture.WriteReceipt, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("commit panic recovered", zap.Stringer("task", task), zap.Any("panic", r))
			err = &capture.SinkWriteError{Task: task, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	receipt, err = commit(ctx, c)
	if err != nil {
		return capture.WriteReceipt{}, &capture.SinkWriteError{Task: task, Err: err}
	}
	return receipt, nil
}

func (p *Pool) aborted(task capture.Task, cause error) capture.Result {
	if cause == nil {
		cause = context.Canceled
	}
	now := p.now()
	res := capture.Result{
		Task:     task,
		Status:   capture.StatusAborted,
		Err:      fmt.Errorf("not started: %w", cause),
		Started:  now,
		Finished: now,
	}
	p.emitter.Emit(progress.TaskDone(p.runID, res))
	return res
}

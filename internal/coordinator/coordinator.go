// Package coordinator turns a requested matchweek list into capture tasks,
// runs them on the worker pool and folds the results into a run summary.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
	iduuid "github.com/JakeFAU/matchweek-ingest/internal/id/uuid"
	"github.com/JakeFAU/matchweek-ingest/internal/pool"
	"github.com/JakeFAU/matchweek-ingest/internal/progress"
)

// ErrInvalidRequest is returned for malformed run requests.
var ErrInvalidRequest = errors.New("invalid run request")

const bookkeepingTimeout = 10 * time.Second

// Request describes one scrape run.
type Request struct {
	Season     string
	Matchweeks []int
	Workers    int
	// Resume skips matchweeks that already have a sink entry.
	Resume bool
}

// Config holds coordinator settings that do not vary per run.
type Config struct {
	TaskTimeout time.Duration
	// Topic receives a capture.Notification for every written capture.
	Topic string
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLedger records every attempted task outcome.
func WithLedger(ledger capture.Ledger) Option {
	return func(c *Coordinator) { c.ledger = ledger }
}

// WithPublisher announces written captures.
func WithPublisher(publisher capture.Publisher) Option {
	return func(c *Coordinator) { c.publisher = publisher }
}

// WithProgress forwards run and task events to emitter.
func WithProgress(emitter progress.Emitter) Option {
	return func(c *Coordinator) {
		if emitter != nil {
			c.emitter = emitter
		}
	}
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(ids capture.IDGenerator) Option {
	return func(c *Coordinator) {
		if ids != nil {
			c.ids = ids
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// Coordinator owns run-level orchestration.
type Coordinator struct {
	factory   capture.SessionFactory
	sink      capture.Sink
	ledger    capture.Ledger
	publisher capture.Publisher
	emitter   progress.Emitter
	ids       capture.IDGenerator
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// New builds a coordinator. Ledger and publisher are optional.
func New(factory capture.SessionFactory, sink capture.Sink, cfg Config, opts ...Option) (*Coordinator, error) {
	if factory == nil {
		return nil, errors.New("coordinator requires a session factory")
	}
	if sink == nil {
		return nil, errors.New("coordinator requires a sink")
	}
	c := &Coordinator{
		factory: factory,
		sink:    sink,
		emitter: progress.Nop{},
		ids:     iduuid.New(),
		cfg:     cfg,
		logger:  zap.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("coordinator")
	return c, nil
}

// Run executes the request and returns the run summary.
//
// The error is nil when at least one matchweek is usable, even if others
// failed. A cancelled ctx yields *capture.RunAbortedError alongside the
// partial summary; a run without any usable capture yields capture.ErrNoSuccess.
func (c *Coordinator) Run(ctx context.Context, req Request) (capture.Summary, error) {
	matchweeks, err := validate(req)
	if err != nil {
		return capture.Summary{}, err
	}
	runID, err := c.ids.NewID()
	if err != nil {
		return capture.Summary{}, fmt.Errorf("new run id: %w", err)
	}
	logger := c.logger.With(zap.String("run_id", runID), zap.String("season", req.Season))

	p, err := pool.New(c.factory,
		pool.Config{Workers: req.Workers, TaskTimeout: c.cfg.TaskTimeout},
		pool.WithLogger(logger),
		pool.WithProgress(c.emitter, runID),
		pool.WithClock(c.now),
	)
	if err != nil {
		return capture.Summary{}, err
	}

	summary := capture.NewSummary(runID, req.Season, req.Workers, matchweeks, c.now())
	c.emitter.Emit(progress.Event{
		RunID:  runID,
		TS:     summary.StartedAt,
		Stage:  progress.StageRunStart,
		Season: req.Season,
		Tasks:  len(matchweeks),
	})
	logger.Info("run started", zap.Ints("matchweeks", matchweeks), zap.Int("workers", req.Workers), zap.Bool("resume", req.Resume))

	tasks := c.plan(ctx, runID, req, matchweeks, &summary, logger)
	if len(tasks) > 0 {
		commit := func(ctx context.Context, cp capture.Capture) (capture.WriteReceipt, error) {
			return c.sink.Write(ctx, cp)
		}
		for res := range p.Run(ctx, tasks, commit) {
			summary.Add(res)
			c.logResult(logger, res)
			c.record(ctx, runID, res, logger)
		}
	}
	summary.Finish(c.now())

	runErr := c.outcome(ctx, summary)
	done := progress.Event{
		RunID:  runID,
		TS:     summary.FinishedAt,
		Stage:  progress.StageRunDone,
		Season: req.Season,
		Tasks:  len(matchweeks),
		Dur:    summary.Duration(),
	}
	if runErr != nil {
		done.Note = runErr.Error()
	}
	c.emitter.Emit(done)
	logger.Info("run finished",
		zap.Ints("succeeded", summary.Succeeded),
		zap.Ints("reused", summary.Reused),
		zap.Ints("failed", summary.FailedMatchweeks()),
		zap.Ints("aborted", summary.Aborted),
		zap.Duration("duration", summary.Duration()),
		zap.Error(runErr),
	)
	return summary, runErr
}

// plan returns the tasks to run, folding already-present entries into the
// summary when resuming.
func (c *Coordinator) plan(
	ctx context.Context,
	runID string,
	req Request,
	matchweeks []int,
	summary *capture.Summary,
	logger *zap.Logger,
) []capture.Task {
	tasks := make([]capture.Task, 0, len(matchweeks))
	for _, mw := range matchweeks {
		if req.Resume {
			ok, err := c.sink.Exists(ctx, req.Season, mw)
			if err != nil {
				logger.Warn("resume check failed, scraping again", zap.Int("matchweek", mw), zap.Error(err))
			}
			if ok {
				summary.AddReused(mw, "")
				c.emitter.Emit(progress.Event{
					RunID:     runID,
					TS:        c.now(),
					Stage:     progress.StageReused,
					Season:    req.Season,
					Matchweek: mw,
				})
				logger.Info("matchweek already captured", zap.Int("matchweek", mw))
				continue
			}
		}
		tasks = append(tasks, capture.Task{Season: req.Season, Matchweek: mw})
	}
	return tasks
}

func (c *Coordinator) outcome(ctx context.Context, summary capture.Summary) error {
	if len(summary.Aborted) > 0 {
		cause := ctx.Err()
		if cause == nil {
			cause = context.Canceled
		}
		return &capture.RunAbortedError{Aborted: len(summary.Aborted), Err: cause}
	}
	if !summary.Usable() {
		return capture.ErrNoSuccess
	}
	return nil
}

func (c *Coordinator) logResult(logger *zap.Logger, res capture.Result) {
	fields := []zap.Field{
		zap.Int("matchweek", res.Task.Matchweek),
		zap.Int("worker", res.Worker),
		zap.String("status", string(res.Status)),
		zap.Duration("duration", res.Duration()),
	}
	switch res.Status {
	case capture.StatusSucceeded:
		logger.Info("matchweek captured", append(fields,
			zap.Int("matches", len(res.Capture.Matches)),
			zap.Ints("missing_match_ids", res.Capture.MissingMatchIDs),
			zap.String("uri", res.URI),
		)...)
	case capture.StatusAborted:
		logger.Warn("matchweek not started", fields...)
	default:
		logger.Warn("matchweek failed", append(fields,
			zap.String("phase", capture.Phase(res.Err)),
			zap.Error(res.Err),
		)...)
	}
}

// record writes the ledger entry and the notification for an attempted task.
// Both are best effort and use a context detached from run cancellation.
func (c *Coordinator) record(ctx context.Context, runID string, res capture.Result, logger *zap.Logger) {
	if res.Status == capture.StatusAborted {
		return
	}
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	if c.ledger != nil {
		entry := capture.LedgerEntry{
			RunID:       runID,
			Season:      res.Task.Season,
			Matchweek:   res.Task.Matchweek,
			Status:      res.Status,
			BlobURI:     res.URI,
			ContentHash: res.ContentHash,
			RecordedAt:  res.Finished,
		}
		if res.Capture != nil {
			entry.MatchCount = len(res.Capture.Matches)
		}
		if res.Err != nil {
			entry.ErrorText = res.Err.Error()
		}
		if err := c.ledger.Record(bctx, entry); err != nil {
			logger.Warn("ledger record failed", zap.Int("matchweek", res.Task.Matchweek), zap.Error(err))
		}
	}

	if c.publisher != nil && c.cfg.Topic != "" && res.Status == capture.StatusSucceeded {
		note := capture.Notification{
			RunID:      runID,
			Season:     res.Task.Season,
			Matchweek:  res.Task.Matchweek,
			BlobURI:    res.URI,
			MatchCount: len(res.Capture.Matches),
			CapturedAt: res.Capture.CapturedAt,
		}
		if _, err := c.publisher.Publish(bctx, c.cfg.Topic, note); err != nil {
			logger.Warn("capture notification failed", zap.Int("matchweek", res.Task.Matchweek), zap.Error(err))
		}
	}
}

// validate checks the request and returns its matchweeks with duplicates
// removed, first occurrence kept.
func validate(req Request) ([]int, error) {
	if strings.TrimSpace(req.Season) == "" {
		return nil, fmt.Errorf("%w: season is required", ErrInvalidRequest)
	}
	if len(req.Matchweeks) == 0 {
		return nil, fmt.Errorf("%w: at least one matchweek is required", ErrInvalidRequest)
	}
	seen := make(map[int]struct{}, len(req.Matchweeks))
	out := make([]int, 0, len(req.Matchweeks))
	for _, mw := range req.Matchweeks {
		if mw < 1 {
			return nil, fmt.Errorf("%w: matchweek %d must be >= 1", ErrInvalidRequest, mw)
		}
		if _, dup := seen[mw]; dup {
			continue
		}
		seen[mw] = struct{}{}
		out = append(out, mw)
	}
	return out, nil
}

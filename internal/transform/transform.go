// Package transform turns bronze captures into cleaned, flattened silver rows.
// It reads only what the sink has written and shares no state with the
// scrape pool, so it can run long after the captures were taken.
package transform

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
	"github.com/JakeFAU/matchweek-ingest/internal/sink"
)

// ErrNothingTransformed is returned when no requested matchweek produced silver output.
var ErrNothingTransformed = errors.New("no matchweek transformed")

// Config controls the transform stage.
type Config struct {
	Prefix string
	// Concurrency bounds matchweeks processed at once.
	Concurrency int
}

// Report lists per-matchweek outcomes of a transform run.
type Report struct {
	Season  string
	Written map[int]string
	Missing []int
	Failed  map[int]string
}

// WrittenMatchweeks returns the transformed matchweeks in ascending order.
func (r Report) WrittenMatchweeks() []int {
	out := make([]int, 0, len(r.Written))
	for mw := range r.Written {
		out = append(out, mw)
	}
	slices.Sort(out)
	return out
}

// Transformer reads bronze captures and writes silver CSVs.
type Transformer struct {
	reader capture.SinkReader
	blobs  capture.BlobStore
	cfg    Config
	logger *zap.Logger
}

// New builds a Transformer.
func New(reader capture.SinkReader, blobs capture.BlobStore, cfg Config, logger *zap.Logger) (*Transformer, error) {
	if reader == nil || blobs == nil {
		return nil, errors.New("transform requires a sink reader and a blob store")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transformer{reader: reader, blobs: blobs, cfg: cfg, logger: logger.Named("transform")}, nil
}

// Run transforms each distinct matchweek independently. A matchweek without
// a bronze entry is reported missing; it is not an error unless nothing at
// all was written.
func (t *Transformer) Run(ctx context.Context, season string, matchweeks []int) (Report, error) {
	matchweeks = slices.Clone(matchweeks)
	slices.Sort(matchweeks)
	matchweeks = slices.Compact(matchweeks)

	report := Report{
		Season:  season,
		Written: make(map[int]string),
		Failed:  make(map[int]string),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Concurrency)
	for _, mw := range matchweeks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			uri, err := t.matchweek(gctx, season, mw)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Written[mw] = uri
			case errors.Is(err, capture.ErrObjectNotFound):
				report.Missing = append(report.Missing, mw)
				t.logger.Warn("no bronze capture", zap.String("season", season), zap.Int("matchweek", mw))
			default:
				report.Failed[mw] = err.Error()
				t.logger.Error("transform failed", zap.String("season", season), zap.Int("matchweek", mw), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("transform %s: %w", season, err)
	}
	slices.Sort(report.Missing)

	if len(report.Written) == 0 {
		return report, fmt.Errorf("%w for %s (missing %v, failed %d)", ErrNothingTransformed, season, report.Missing, len(report.Failed))
	}
	return report, nil
}

func (t *Transformer) matchweek(ctx context.Context, season string, matchweek int) (string, error) {
	ok, err := t.reader.Exists(ctx, season, matchweek)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", capture.ErrObjectNotFound
	}
	c, err := t.reader.Read(ctx, season, matchweek)
	if err != nil {
		return "", err
	}

	rows := make([]Row, 0, len(c.Matches))
	for _, m := range c.Matches {
		rows = append(rows, Flatten(Clean(m)))
	}
	data, err := EncodeCSV(rows)
	if err != nil {
		return "", fmt.Errorf("encode silver rows: %w", err)
	}
	key := sink.Key(t.cfg.Prefix, sink.LayerSilver, season, matchweek, sink.MatchesObject)
	uri, err := t.blobs.PutObject(ctx, key, "text/csv", data)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	t.logger.Info("silver written",
		zap.String("season", season),
		zap.Int("matchweek", matchweek),
		zap.Int("rows", len(rows)),
		zap.String("uri", uri),
	)
	return uri, nil
}

// Package sink persists captures under keys derived from season and matchweek.
package sink

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
	"github.com/JakeFAU/matchweek-ingest/internal/metrics"
)

// Sink writes bronze captures into a blob store. Each matchweek entry is a
// summary CSV plus the capture JSON; the JSON is written last and marks the
// entry complete.
type Sink struct {
	blobs  capture.BlobStore
	prefix string
	logger *zap.Logger
}

// New returns a Sink writing under prefix.
func New(blobs capture.BlobStore, prefix string, logger *zap.Logger) (*Sink, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{blobs: blobs, prefix: prefix, logger: logger.Named("sink")}, nil
}

// Write replaces the entry for the capture's season and matchweek. The
// summary goes first and capture.json last, so capture.json marks a complete
// entry. If capture.json cannot be replaced, the summary is rebuilt from the
// capture still in place.
func (s *Sink) Write(ctx context.Context, c capture.Capture) (receipt capture.WriteReceipt, err error) {
	if c.Season == "" || c.Matchweek < 1 {
		return capture.WriteReceipt{}, fmt.Errorf("invalid capture key %q/%d", c.Season, c.Matchweek)
	}
	start := time.Now()
	defer func() { metrics.ObserveSinkWrite(err == nil, time.Since(start)) }()

	body, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return capture.WriteReceipt{}, fmt.Errorf("marshal capture: %w", err)
	}
	summary, err := summaryCSV(c)
	if err != nil {
		return capture.WriteReceipt{}, fmt.Errorf("encode summary: %w", err)
	}

	summaryKey := Key(s.prefix, LayerBronze, c.Season, c.Matchweek, SummaryObject)
	if _, err := s.blobs.PutObject(ctx, summaryKey, "text/csv", summary); err != nil {
		return capture.WriteReceipt{}, fmt.Errorf("put %s: %w", summaryKey, err)
	}
	captureKey := Key(s.prefix, LayerBronze, c.Season, c.Matchweek, CaptureObject)
	uri, err := s.blobs.PutObject(ctx, captureKey, "application/json", body)
	if err != nil {
		s.restoreSummary(ctx, c.Season, c.Matchweek, summaryKey)
		return capture.WriteReceipt{}, fmt.Errorf("put %s: %w", captureKey, err)
	}

	sum := sha256.Sum256(body)
	receipt = capture.WriteReceipt{URI: uri, ContentHash: hex.EncodeToString(sum[:])}
	s.logger.Debug("capture written",
		zap.String("season", c.Season),
		zap.Int("matchweek", c.Matchweek),
		zap.Int("matches", len(c.Matches)),
		zap.String("uri", uri),
	)
	return receipt, nil
}

const restoreTimeout = 10 * time.Second

// restoreSummary rewrites summary.csv from the stored capture after a failed
// replacement. Without a stored capture there is no entry to keep consistent.
func (s *Sink) restoreSummary(ctx context.Context, season string, matchweek int, summaryKey string) {
	// The failed put may have used up the caller's deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()
	logger := s.logger.With(zap.String("season", season), zap.Int("matchweek", matchweek))
	prev, err := s.Read(ctx, season, matchweek)
	switch {
	case errors.Is(err, capture.ErrObjectNotFound):
		return
	case err != nil:
		logger.Warn("summary left ahead of capture", zap.Error(err))
		return
	}
	summary, err := summaryCSV(prev)
	if err == nil {
		_, err = s.blobs.PutObject(ctx, summaryKey, "text/csv", summary)
	}
	if err != nil {
		logger.Warn("summary left ahead of capture", zap.Error(err))
		return
	}
	logger.Debug("summary restored after failed capture write")
}

// Exists reports whether a complete entry is present.
func (s *Sink) Exists(ctx context.Context, season string, matchweek int) (bool, error) {
	ok, err := s.blobs.Exists(ctx, Key(s.prefix, LayerBronze, season, matchweek, CaptureObject))
	if err != nil {
		return false, fmt.Errorf("check capture: %w", err)
	}
	return ok, nil
}

// Read loads the capture for a matchweek. Missing entries wrap capture.ErrObjectNotFound.
func (s *Sink) Read(ctx context.Context, season string, matchweek int) (capture.Capture, error) {
	data, err := s.blobs.GetObject(ctx, Key(s.prefix, LayerBronze, season, matchweek, CaptureObject))
	if err != nil {
		return capture.Capture{}, fmt.Errorf("get capture: %w", err)
	}
	var c capture.Capture
	if err := json.Unmarshal(data, &c); err != nil {
		return capture.Capture{}, fmt.Errorf("decode capture: %w", err)
	}
	return c, nil
}

// Path returns the object key of the capture for a matchweek.
func (s *Sink) Path(season string, matchweek int) string {
	return Key(s.prefix, LayerBronze, season, matchweek, CaptureObject)
}

var summaryHeader = []string{"match_id", "home_team", "away_team", "stat_name", "home_value", "away_value"}

// summaryCSV renders one row per match statistic, ordered by match then stat name.
func summaryCSV(c capture.Capture) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(summaryHeader); err != nil {
		return nil, err
	}
	for _, m := range c.Matches {
		names := make([]string, 0, len(m.Statistics))
		for name := range m.Statistics {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			stat := m.Statistics[name]
			row := []string{
				strconv.Itoa(m.MatchID),
				m.Info.HomeTeam,
				m.Info.AwayTeam,
				name,
				stat.Home,
				stat.Away,
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var (
	_ capture.Sink       = (*Sink)(nil)
	_ capture.SinkReader = (*Sink)(nil)
)

// Package browser launches and drives isolated Chrome processes through
// chromedp. Each session owns one process and one temporary profile and
// knows nothing about scheduling.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
	"github.com/JakeFAU/matchweek-ingest/internal/matchpage"
	"github.com/JakeFAU/matchweek-ingest/internal/metrics"
)

// Schedule resolves a matchweek to its match ids.
type Schedule interface {
	MatchIDs(season string, matchweek int) ([]int, error)
}

// pageLoader returns the rendered HTML of a page.
type pageLoader interface {
	Load(ctx context.Context, url string) (string, error)
}

// Session is a live browser process bound to one worker slot.
type Session struct {
	cfg      Config
	schedule Schedule
	loader   pageLoader
	limiter  *rate.Limiter
	logger   *zap.Logger
	// alive reports nil while the browser is still usable.
	alive    func() error
	teardown func()
	once     sync.Once
}

func newSession(cfg Config, schedule Schedule, loader pageLoader, alive func() error, teardown func(), logger *zap.Logger) *Session {
	limit := rate.Inf
	if cfg.RequestInterval > 0 {
		limit = rate.Every(cfg.RequestInterval)
	}
	return &Session{
		cfg:      cfg,
		schedule: schedule,
		loader:   loader,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
		alive:    alive,
		teardown: teardown,
	}
}

// Extract visits every match of the task's matchweek and returns the
// structured capture. Individual pages that fail are listed as missing; the
// extraction fails when the browser dies, the context ends, or fewer than
// MinMatches pages were captured.
func (s *Session) Extract(ctx context.Context, task capture.Task) (capture.Capture, error) {
	ids, err := s.schedule.MatchIDs(task.Season, task.Matchweek)
	if err != nil {
		return capture.Capture{}, fmt.Errorf("resolve match ids: %w", err)
	}
	out := capture.Capture{Season: task.Season, Matchweek: task.Matchweek}
	for _, id := range ids {
		if err := s.limiter.Wait(ctx); err != nil {
			return capture.Capture{}, interrupted(len(out.Matches), len(ids), err)
		}
		match, err := s.captureMatch(ctx, task, id)
		if err == nil {
			metrics.ObservePage(true)
			out.Matches = append(out.Matches, match)
			continue
		}
		metrics.ObservePage(false)
		if aliveErr := s.alive(); aliveErr != nil {
			return capture.Capture{}, fmt.Errorf("browser exited: %w", errors.Join(aliveErr, err))
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return capture.Capture{}, interrupted(len(out.Matches), len(ids), ctxErr)
		}
		s.logger.Warn("match page skipped",
			zap.String("season", task.Season),
			zap.Int("matchweek", task.Matchweek),
			zap.Int("match_id", id),
			zap.Error(err),
		)
		out.MissingMatchIDs = append(out.MissingMatchIDs, id)
	}
	if len(out.Matches) < s.cfg.MinMatches {
		return capture.Capture{}, fmt.Errorf("captured %d of %d matches, need at least %d (missing %s)",
			len(out.Matches), len(ids), s.cfg.MinMatches, joinIDs(out.MissingMatchIDs))
	}
	out.CapturedAt = time.Now().UTC()
	return out, nil
}

func (s *Session) captureMatch(ctx context.Context, task capture.Task, id int) (capture.Match, error) {
	url := MatchURL(s.cfg.BaseURL, id)
	html, err := s.loader.Load(ctx, url)
	if err != nil {
		return capture.Match{}, err
	}
	match, err := matchpage.Parse([]byte(html))
	if err != nil {
		return capture.Match{}, fmt.Errorf("parse %s: %w", url, err)
	}
	match.MatchID = id
	match.URL = url
	match.Season = task.Season
	match.Matchweek = task.Matchweek
	match.ScrapedAt = time.Now().UTC()
	return match, nil
}

// Release terminates the browser and removes its profile. Only the first
// call has an effect.
func (s *Session) Release() {
	s.once.Do(func() {
		if s.teardown != nil {
			s.teardown()
		}
	})
}

// MatchURL renders the page URL for a match id.
func MatchURL(baseURL string, id int) string {
	return strings.TrimRight(baseURL, "/") + "/match/" + strconv.Itoa(id)
}

func interrupted(done, total int, err error) error {
	return fmt.Errorf("matchweek interrupted after %d of %d matches: %w", done, total, err)
}

func joinIDs(ids []int) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// chromeLoader visits pages in the session's browser tab.
type chromeLoader struct {
	cfg        Config
	browserCtx context.Context
}

// Load navigates to url within PageTimeout. Cancellation of ctx aborts the
// visit without closing the browser.
func (l *chromeLoader) Load(ctx context.Context, url string) (string, error) {
	pageCtx, cancel := context.WithTimeout(l.browserCtx, l.cfg.PageTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	if err := chromedp.Run(pageCtx, l.pageActions(url, &html)...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("load %s: %w", url, ctxErr)
		}
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("load %s: navigation timeout after %s: %w", url, l.cfg.PageTimeout, err)
		}
		return "", fmt.Errorf("chromedp run %s: %w", url, err)
	}
	return html, nil
}

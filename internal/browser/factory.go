package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
	"github.com/JakeFAU/matchweek-ingest/internal/metrics"
)

// closeTimeout bounds how long a browser may take to shut down.
const closeTimeout = 5 * time.Second

// Factory launches a fresh Chrome process per Acquire.
type Factory struct {
	cfg      Config
	schedule Schedule
	logger   *zap.Logger
}

// NewFactory validates cfg and returns a session factory.
func NewFactory(cfg Config, schedule Schedule, logger *zap.Logger) (*Factory, error) {
	if schedule == nil {
		return nil, fmt.Errorf("browser factory requires a schedule")
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, schedule: schedule, logger: logger.Named("browser")}, nil
}

// Acquire starts a browser with its own profile directory and waits up to
// StartTimeout for it to come up. On failure nothing is left running.
func (f *Factory) Acquire(ctx context.Context) (capture.Session, error) {
	start := time.Now()
	profile, err := os.MkdirTemp(f.cfg.ProfileRoot, "matchweek-chrome-*")
	if err != nil {
		metrics.SessionStarted(false, 0)
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	// The browser outlives any single call; Release owns its lifetime.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), f.allocatorOptions(profile)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(f.logger.Sugar().Debugf),
	)
	removeProfile := func() {
		if err := os.RemoveAll(profile); err != nil {
			f.logger.Warn("remove browser profile", zap.String("dir", profile), zap.Error(err))
		}
	}
	teardown := func() {
		closeCtx, cancel := context.WithTimeout(browserCtx, closeTimeout)
		if err := chromedp.Cancel(closeCtx); err != nil {
			f.logger.Debug("browser close", zap.Error(err))
		}
		cancel()
		browserCancel()
		allocCancel()
		removeProfile()
	}
	// abandon tears down a browser that never came up. The chromedp context
	// cancel blocks until a pending allocation completes, which never happens
	// when the launch failed, so only the allocator is cancelled and only for
	// a bounded time.
	abandon := func() {
		done := make(chan struct{})
		go func() {
			allocCancel()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(closeTimeout):
			f.logger.Warn("browser process still shutting down", zap.String("profile", profile))
		}
		removeProfile()
	}

	launched := make(chan error, 1)
	go func() {
		launched <- chromedp.Run(browserCtx)
	}()
	timer := time.NewTimer(f.cfg.StartTimeout)
	defer timer.Stop()

	var launchErr error
	select {
	case launchErr = <-launched:
	case <-timer.C:
		launchErr = fmt.Errorf("browser did not start within %s", f.cfg.StartTimeout)
	case <-ctx.Done():
		launchErr = ctx.Err()
	}
	if launchErr != nil {
		abandon()
		metrics.SessionStarted(false, 0)
		return nil, fmt.Errorf("launch browser: %w", launchErr)
	}

	metrics.SessionStarted(true, time.Since(start))
	f.logger.Debug("browser started", zap.String("profile", profile), zap.Duration("took", time.Since(start)))
	loader := &chromeLoader{cfg: f.cfg, browserCtx: browserCtx}
	return newSession(f.cfg, f.schedule, loader, browserCtx.Err, func() {
		teardown()
		metrics.SessionReleased()
	}, f.logger), nil
}

func (f *Factory) allocatorOptions(profile string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profile),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(f.cfg.WindowWidth, f.cfg.WindowHeight),
		chromedp.UserAgent(f.cfg.UserAgent),
	)
	if f.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if f.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ExecPath))
	}
	return opts
}

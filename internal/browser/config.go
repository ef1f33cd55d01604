package browser

import (
	"errors"
	"time"
)

// Config controls how browser sessions are launched and paced.
type Config struct {
	// BaseURL is the origin serving match pages at /match/{id}.
	BaseURL string
	// ExecPath overrides the Chrome binary; empty uses chromedp's lookup.
	ExecPath     string
	Headless     bool
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	// ProfileRoot is where per-session profile directories are created;
	// empty uses os.TempDir.
	ProfileRoot string
	// StartTimeout bounds browser launch.
	StartTimeout time.Duration
	// PageTimeout bounds each match page visit.
	PageTimeout time.Duration
	// SettleDelay waits after the body is ready for client-side rendering.
	SettleDelay time.Duration
	// RequestInterval is the minimum gap between page visits in one session.
	RequestInterval time.Duration
	// MinMatches is the number of captured matches below which a matchweek fails.
	MinMatches int
}

// Defaults used when a Config field is zero.
const (
	DefaultBaseURL         = "https://www.premierleague.com"
	DefaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultStartTimeout    = 30 * time.Second
	DefaultPageTimeout     = 30 * time.Second
	DefaultSettleDelay     = 3 * time.Second
	DefaultRequestInterval = 2 * time.Second
)

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1920
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 1080
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = DefaultPageTimeout
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.RequestInterval < 0 {
		c.RequestInterval = 0
	}
	if c.MinMatches <= 0 {
		c.MinMatches = 1
	}
	return c
}

func (c Config) validate() error {
	if c.MinMatches > 10 {
		return errors.New("browser.min_matches must be <= 10")
	}
	return nil
}

package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	consentScript = `(() => {
	const btn = document.querySelector('#onetrust-accept-btn-handler');
	if (!btn) { return false; }
	btn.click();
	return true;
})()`

	statsTabScript = `(() => {
	const candidates = Array.from(document.querySelectorAll('a, button'))
		.filter(el => (el.textContent || '').includes('Stats'));
	const tab = candidates[0] || document.querySelector("[data-tab-index='3']");
	if (!tab) { return false; }
	tab.click();
	return true;
})()`

	scrollBottomScript = `window.scrollTo(0, document.body.scrollHeight); true`
	scrollTopScript    = `window.scrollTo(0, 0); true`
)

// pageActions visits one match page and leaves its rendered DOM in html.
func (l *chromeLoader) pageActions(url string, html *string) []chromedp.Action {
	return []chromedp.Action{
		l.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(l.cfg.SettleDelay),
		clickIfPresent(consentScript, time.Second),
		clickIfPresent(statsTabScript, 2*time.Second),
		clickIfPresent(scrollBottomScript, time.Second),
		clickIfPresent(scrollTopScript, time.Second),
		chromedp.OuterHTML("html", html, chromedp.ByQuery),
	}
}

func (l *chromeLoader) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if l.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(l.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// clickIfPresent runs a script that reports whether it acted and pauses
// afterwards only when it did. Absent elements are not an error.
func clickIfPresent(script string, pause time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var acted bool
		if err := chromedp.Evaluate(script, &acted).Do(ctx); err != nil {
			return fmt.Errorf("evaluate page script: %w", err)
		}
		if !acted || pause <= 0 {
			return nil
		}
		return chromedp.Sleep(pause).Do(ctx)
	})
}

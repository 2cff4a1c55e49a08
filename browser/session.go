package browser

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/pagesnap/models"
)

// minBodyBytes is the smallest body.innerHTML length considered "real
// content" when waiting for the page to settle.
const minBodyBytes = 500

// Session is one live browsing context bound to a single page task.
// It must be released with Close on every exit path of the owning task.
type Session struct {
	URL    string
	page   *rod.Page
	parent *Browser
	router *rod.HijackRouter
	closed bool
}

// Open borrows a page, navigates to rawURL, and waits until network
// activity is idle or the context deadline elapses. A wait timeout is
// recoverable: the session is returned with whatever loaded. A
// navigation failure is fatal and reported as NavigationError.
//
// Lifecycle ordering matters: stealth injection and request hijacking
// only affect navigations installed before them, and the idle waiter
// must be registered before Navigate or in-flight requests are missed.
func (b *Browser) Open(ctx context.Context, rawURL string) (*Session, error) {
	page, err := b.acquirePage()
	if err != nil {
		return nil, err
	}

	s := &Session{URL: rawURL, page: page, parent: b}

	// Stealth before navigation.
	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without stealth",
			"error", evalErr)
	}

	// A Google-referer header lowers bot friction on marketing pages.
	if u, parseErr := url.Parse(rawURL); parseErr == nil {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: proto.NetworkHeaders{
				"Referer": gson.New("https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())),
			},
		}.Call(page)
	}

	// Ad/tracking hijack. Unlike a scrape-only pipeline, page images are
	// never blocked here: the capture needs them on screen and in the DOM.
	if b.cfg.BlockAds {
		s.router = mountAdBlock(page)
	}

	p := page.Context(ctx)

	// NOTE: WaitRequestIdle uses the Fetch domain, which conflicts with
	// HijackRequests on Chromium 145+. With the ad router mounted we fall
	// back to WaitDOMStable.
	var waitIdle func()
	if s.router == nil {
		waitIdle = p.WaitRequestIdle(800*time.Millisecond, nil, nil, nil)
	}

	if navErr := p.Navigate(rawURL); navErr != nil {
		s.Close()
		return nil, navigationError(navErr)
	}

	if waitIdle != nil {
		waitIdle()
	} else if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"url", rawURL, "error", stableErr)
	}

	// The page can be "idle" while still an empty shell; poll for a
	// non-trivial body until the deadline. Running out of time here is
	// recoverable: proceed with whatever loaded.
	s.waitForBody(ctx)

	return s, nil
}

// waitForBody polls body.innerHTML length until it crosses minBodyBytes
// or ctx expires.
func (s *Session) waitForBody(ctx context.Context) {
	p := s.page.Context(ctx)
	for {
		if n, err := evalInt(p, `() => document.body ? document.body.innerHTML.length : 0`); err == nil && n > minBodyBytes {
			return
		}
		select {
		case <-ctx.Done():
			slog.Warn("page body never settled, proceeding", "url", s.URL)
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// Page exposes the underlying rod page for capture and interaction passes.
func (s *Session) Page() *rod.Page { return s.page }

// ViewportHeight reports window.innerHeight.
func (s *Session) ViewportHeight() (int, error) {
	return evalInt(s.page, `() => window.innerHeight`)
}

// ScrollHeight reports the page's current full scroll height.
func (s *Session) ScrollHeight() (int, error) {
	return evalInt(s.page, `() => Math.max(
		document.body ? document.body.scrollHeight : 0,
		document.documentElement.scrollHeight,
		document.body ? document.body.offsetHeight : 0)`)
}

// ScrollTo scrolls the viewport to the given vertical offset.
func (s *Session) ScrollTo(y int) error {
	_, err := s.page.Eval(`(y) => window.scrollTo(0, y)`, y)
	return err
}

// ScrollY reports the actual scroll position after browser clamping.
func (s *Session) ScrollY() (int, error) {
	return evalInt(s.page, `() => Math.round(window.scrollY)`)
}

// PressEscape sends the Escape key, which closes many ad-hoc modals.
func (s *Session) PressEscape() {
	if err := s.page.Keyboard.Press(input.Escape); err != nil {
		slog.Debug("escape key failed", "error", err)
	}
}

// HTML serializes the full live DOM, doctype included.
func (s *Session) HTML() (string, error) {
	res, err := s.page.Eval(`() => '<!DOCTYPE html>' + document.documentElement.outerHTML`)
	if err != nil {
		// page.HTML goes through a different CDP path and sometimes
		// survives an Eval failure.
		html, fallbackErr := s.page.HTML()
		if fallbackErr != nil {
			return "", models.NewCaptureError(models.ErrCodeExtraction,
				"failed to serialize DOM", fallbackErr)
		}
		return html, nil
	}
	return res.Value.Str(), nil
}

// Domain returns the hostname of the session URL.
func (s *Session) Domain() string {
	u, err := url.Parse(s.URL)
	if err != nil {
		return s.URL
	}
	return u.Hostname()
}

// Close stops the hijack router and returns the tab to the pool.
// Navigating to about:blank first drops the page's DOM so pooled tabs do
// not accumulate memory. Safe to call more than once.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true

	if s.router != nil {
		_ = s.router.Stop()
	}
	if navErr := s.page.Navigate("about:blank"); navErr != nil {
		slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
	}
	s.parent.pagePool.Put(s.page)
}

func evalInt(p *rod.Page, js string) (int, error) {
	res, err := p.Eval(js)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func navigationError(err error) *models.CaptureError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewCaptureError(models.ErrCodeNavigation,
			"navigation deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return models.NewCaptureError(models.ErrCodeNavigation,
			"navigation canceled", err)
	default:
		return models.NewCaptureError(models.ErrCodeNavigation,
			"navigation to target URL failed", err)
	}
}

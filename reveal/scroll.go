// Package reveal drives the interactions that make hidden and
// lazy-loaded content observable before capture and extraction: the
// scroll pass and the expansion pass.
package reveal

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/pagesnap/browser"
	"github.com/use-agent/pagesnap/config"
)

// bottomSlack is how close to the page end counts as "at the bottom";
// fractional pixels and sticky footers make exact equality unreliable.
const bottomSlack = 10

// Observer is called once per settled scroll position, with the actual
// scroll offset after browser clamping. The screenshot stitcher hooks in
// here so tiles are captured in this same pass and scroll position and
// pixels stay consistent. An observer error aborts the pass.
type Observer func(offsetY int) error

// ScrollResult summarizes a finished scroll pass.
type ScrollResult struct {
	// FinalHeight is the last recorded scroll-height, authoritative for
	// the composite even if the layout shifted mid-pass.
	FinalHeight    int
	ViewportHeight int
	Steps          int

	// Stalled is true when the pass ended because the height stabilized,
	// false when it hit the step ceiling.
	Stalled bool
}

// ScrollPass scrolls the viewport down one viewport height at a time,
// waiting after each step, recording the scroll-height as it grows.
// It ends when the bottom is reached and the height has been unchanged
// for the configured run of steps, or at the step ceiling. If the last
// observed position does not reach the final height, one extra
// bottom-anchored observation closes the gap.
func ScrollPass(ctx context.Context, s *browser.Session, cfg config.CaptureConfig, observe Observer) (ScrollResult, error) {
	res := ScrollResult{}

	viewport, err := s.ViewportHeight()
	if err != nil || viewport <= 0 {
		viewport = 1080
	}
	res.ViewportHeight = viewport

	height, err := s.ScrollHeight()
	if err != nil {
		return res, err
	}
	res.FinalHeight = height

	stable := 0
	lastObserved := -viewport
	y := 0

	for res.Steps < cfg.MaxScrollSteps {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		if err := s.ScrollTo(y); err != nil {
			return res, err
		}
		settle(ctx, cfg.StepDelay)

		actual, err := s.ScrollY()
		if err != nil {
			actual = y
		}
		if observe != nil {
			if err := observe(actual); err != nil {
				return res, err
			}
		}
		lastObserved = actual
		res.Steps++

		h, err := s.ScrollHeight()
		if err == nil {
			if h == res.FinalHeight {
				stable++
			} else {
				stable = 0
				res.FinalHeight = h
			}
		}

		atBottom := actual+viewport >= res.FinalHeight-bottomSlack
		if atBottom && stable >= cfg.ScrollStallThreshold {
			res.Stalled = true
			break
		}
		y += viewport
	}

	// Bottom-anchored gap fill: guarantee observed pixels reach the
	// final height even when it grew after the last regular step.
	if lastObserved+viewport < res.FinalHeight && observe != nil {
		bottom := res.FinalHeight - viewport
		if bottom > lastObserved {
			if err := s.ScrollTo(bottom); err == nil {
				settle(ctx, cfg.StepDelay)
				if actual, err := s.ScrollY(); err == nil {
					if err := observe(actual); err != nil {
						return res, err
					}
					res.Steps++
				}
			}
		}
	}

	if !res.Stalled && res.Steps >= cfg.MaxScrollSteps {
		slog.Debug("scroll pass hit step ceiling",
			"url", s.URL, "steps", res.Steps, "height", res.FinalHeight)
	}

	if err := s.ScrollTo(0); err != nil {
		slog.Debug("scroll back to top failed", "error", err)
	}
	return res, nil
}

// ForceEagerImages rewrites lazy-load attributes so images resolve as the
// scroll pass brings them into view instead of waiting on
// IntersectionObserver thresholds.
func ForceEagerImages(s *browser.Session) {
	_, err := s.Page().Eval(`() => {
		document.querySelectorAll('img').forEach(img => {
			['data-src', 'data-lazy-src', 'data-original', 'data-lazy'].forEach(attr => {
				const v = img.getAttribute(attr);
				if (v) img.src = v;
			});
			if (img.loading === 'lazy') img.loading = 'eager';
		});
		document.querySelectorAll('img[data-srcset]').forEach(img => {
			if (img.dataset.srcset) img.srcset = img.dataset.srcset;
		});
	}`)
	if err != nil {
		slog.Debug("force-eager images failed", "error", err)
	}
}

func settle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

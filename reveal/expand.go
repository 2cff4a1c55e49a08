package reveal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/pagesnap/browser"
	"github.com/use-agent/pagesnap/models"
)

// tabSelectors locate tab controls that swap content panels in place.
var tabSelectors = []string{
	`[role="tab"]`,
	`.nav-link[data-toggle="tab"]`,
	`[class*="tab-link"]`,
}

// accordionSelectors locate accordion and FAQ toggles.
var accordionSelectors = []string{
	`.js-accordion__header`,
	`.aria-accordion__header`,
	`[data-toggle="collapse"]`,
	`[data-bs-toggle="collapse"]`,
	`.accordion-button`,
	`button[aria-expanded="false"]`,
	`.faq-question`,
}

const keyTextLen = 40

// ExpandResult summarizes a finished expansion pass.
type ExpandResult struct {
	Found   int
	Clicked int
	Skipped int
}

// ExpandPass clicks tab controls and accordion toggles that have not
// been visited yet in this task, bounded by maxClicks. Every candidate
// carries a stable structural key tracked in state.Clicked, so a toggle
// is never clicked twice; clicking an accordion again would close the
// content it just opened. Click failures (detached, covered) are logged
// and skipped, never fatal.
func ExpandPass(ctx context.Context, s *browser.Session, state *models.PageState, maxClicks int) ExpandResult {
	res := ExpandResult{}

	res.merge(clickPass(ctx, s, state, tabSelectors, maxClicks, true))
	res.merge(clickPass(ctx, s, state, accordionSelectors, maxClicks, false))

	return res
}

func (r *ExpandResult) merge(o ExpandResult) {
	r.Found += o.Found
	r.Clicked += o.Clicked
	r.Skipped += o.Skipped
}

func clickPass(ctx context.Context, s *browser.Session, state *models.PageState, selectors []string, maxClicks int, tabs bool) ExpandResult {
	res := ExpandResult{}

	for _, sel := range selectors {
		els, err := s.Page().Elements(sel)
		if err != nil {
			continue
		}
		res.Found += len(els)

		for i, el := range els {
			select {
			case <-ctx.Done():
				return res
			default:
			}
			if len(state.Clicked) >= maxClicks {
				return res
			}

			if visible, _ := el.Visible(); !visible {
				continue
			}
			if attrEquals(el, "aria-expanded", "true") {
				res.Skipped++
				continue
			}
			if tabs && skipTab(el) {
				res.Skipped++
				continue
			}

			key := structuralKey(sel, i, el)
			if !markClicked(state, key) {
				res.Skipped++
				continue
			}

			if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
				slog.Debug("expansion click failed, skipping element",
					"url", s.URL, "selector", sel, "index", i, "error", err)
				res.Skipped++
				continue
			}
			res.Clicked++
			settle(ctx, 300*time.Millisecond)
		}
	}
	return res
}

// markClicked records key in state.Clicked, initializing the map on a
// zero-value state. It reports false when the key was already present.
func markClicked(state *models.PageState, key string) bool {
	if state.Clicked == nil {
		state.Clicked = make(map[string]struct{})
	}
	if _, done := state.Clicked[key]; done {
		return false
	}
	state.Clicked[key] = struct{}{}
	return true
}

// skipTab drops tabs that navigate away (external href without a
// controlled panel) or are already selected.
func skipTab(el *rod.Element) bool {
	if attrEquals(el, "aria-selected", "true") {
		return true
	}
	href := attr(el, "href")
	controls := attr(el, "aria-controls")
	if href != "" && !strings.HasPrefix(href, "#") && controls == "" {
		if strings.HasPrefix(href, "http") || strings.HasPrefix(href, "/") {
			return true
		}
	}
	return false
}

// structuralKey builds a stable identity for a clickable element:
// selector, position among its matches, and leading text. It survives
// DOM re-renders that invalidate node handles.
func structuralKey(sel string, index int, el *rod.Element) string {
	text, err := el.Text()
	if err != nil {
		text = ""
	}
	text = truncateKeyText(strings.TrimSpace(text), keyTextLen)
	return fmt.Sprintf("%s#%d|%s", sel, index, text)
}

// truncateKeyText caps s at max bytes without splitting a multi-byte
// rune, so the key stays valid UTF-8.
func truncateKeyText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func attr(el *rod.Element, name string) string {
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return ""
	}
	return *v
}

func attrEquals(el *rod.Element, name, want string) bool {
	return attr(el, name) == want
}

// MakeAllVisible forces tab panels and collapsed accordion content into
// the visible layout so the DOM snapshot and the composite carry
// everything the expansion pass opened plus whatever it could not click.
func MakeAllVisible(s *browser.Session) {
	_, err := s.Page().Eval(`() => {
		document.querySelectorAll('[role="tabpanel"]').forEach(panel => {
			panel.style.display = 'block';
			panel.style.visibility = 'visible';
			panel.style.opacity = '1';
			panel.style.height = 'auto';
			panel.removeAttribute('hidden');
		});
		document.querySelectorAll('.collapse, .accordion-collapse, .js-accordion__panel').forEach(panel => {
			panel.classList.add('show');
			panel.style.display = 'block';
			panel.style.height = 'auto';
			panel.removeAttribute('aria-hidden');
		});
	}`)
	if err != nil {
		slog.Debug("make-visible pass failed", "error", err)
	}
}

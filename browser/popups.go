package browser

import (
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// A dismissStrategy is one popup heuristic. run reports whether it found
// and dismissed something; not finding a match is the normal case, never
// an error.
type dismissStrategy struct {
	name string
	run  func(s *Session) bool
}

// dismissOrder is the fixed priority of strategies. Cookie banners go
// first because they overlay everything else; the JS cleanup goes last
// as a catch-all for whatever the click-based strategies missed.
var dismissOrder = []dismissStrategy{
	{"cookie_banner", dismissCookieBanner},
	{"gating_modal", dismissGatingModal},
	{"modal_close", clickModalCloseButton},
	{"chat_widget", closeChatWidget},
	{"overlay_cleanup", removeOverlaysJS},
}

// DismissPopups runs the dismissal strategies in priority order, with
// strategies that previously matched on this domain tried first. Zero
// matches is a normal outcome. Returns the names of strategies that
// dismissed something.
func (s *Session) DismissPopups() []string {
	domain := s.Domain()
	var matched []string

	ran := make(map[string]bool, len(dismissOrder))
	runOne := func(st dismissStrategy) {
		if ran[st.name] {
			return
		}
		ran[st.name] = true
		if st.run(s) {
			matched = append(matched, st.name)
			slog.Debug("popup dismissed", "url", s.URL, "strategy", st.name)
		}
	}

	for _, name := range s.parent.memory.Get(domain) {
		for _, st := range dismissOrder {
			if st.name == name {
				runOne(st)
			}
		}
	}

	// Cookie banner first, then Escape: it closes many ad-hoc modals
	// and costs nothing before the slower click-based strategies.
	runOne(dismissOrder[0])
	s.PressEscape()
	time.Sleep(300 * time.Millisecond)

	for _, st := range dismissOrder {
		runOne(st)
	}

	s.parent.memory.Set(domain, matched)
	return matched
}

// dismissCookieBanner accepts cookie-consent banners. OneTrust is matched
// by id first since it is everywhere; generic accept buttons are matched
// by text.
func dismissCookieBanner(s *Session) bool {
	if el, err := s.page.Timeout(800 * time.Millisecond).Element("#onetrust-accept-btn-handler"); err == nil {
		if clickIfVisible(el) {
			time.Sleep(500 * time.Millisecond)
			return true
		}
	}

	el, err := s.page.Timeout(800 * time.Millisecond).
		ElementR("button", `/^\s*(accept (all|and continue|cookies)|i accept|got it)\s*$/i`)
	if err != nil {
		return false
	}
	if clickIfVisible(el) {
		time.Sleep(500 * time.Millisecond)
		return true
	}
	return false
}

// dismissGatingModal answers interstitials that demand a company-size
// choice before showing content. Any option unblocks the page, so the
// first visible button wins, but only when it really sits inside a
// modal container, otherwise in-page segment pickers would be clicked.
// Runs up to three rounds because these modals sometimes chain.
func dismissGatingModal(s *Session) bool {
	any := false
	for attempt := 0; attempt < 3; attempt++ {
		el, err := s.page.Timeout(600 * time.Millisecond).
			ElementR("button", `/\d+\s*(-\s*\d+|\+)?\s*employees/i`)
		if err != nil {
			break
		}
		if !isInsideModal(el) {
			break
		}
		if !clickIfVisible(el) {
			break
		}
		any = true
		time.Sleep(1500 * time.Millisecond)
	}
	return any
}

// clickModalCloseButton looks for a small close control inside a dialog.
// The size bound keeps it from clicking full-width buttons that merely
// carry "close" in a class name.
func clickModalCloseButton(s *Session) bool {
	selectors := []string{
		`button[aria-label*="close" i]`,
		`button[class*="close"]`,
		`[role="dialog"] button`,
	}
	for _, sel := range selectors {
		els, err := s.page.Elements(sel)
		if err != nil {
			continue
		}
		for i, el := range els {
			if i >= 3 {
				break
			}
			if visible, _ := el.Visible(); !visible {
				continue
			}
			if !isSmallControl(el) || !isInsideModal(el) {
				continue
			}
			if el.Click(proto.InputMouseButtonLeft, 1) == nil {
				time.Sleep(500 * time.Millisecond)
				return true
			}
		}
	}
	return false
}

// closeChatWidget collapses chat launchers so they do not float over
// every tile of the composite.
func closeChatWidget(s *Session) bool {
	selectors := []string{
		`[class*="chat"] button[class*="close"]`,
		`[id*="chat"] button[class*="close"]`,
		`[class*="chat"] [aria-label*="close" i]`,
		`.chat-close`,
	}
	for _, sel := range selectors {
		els, err := s.page.Elements(sel)
		if err != nil || len(els) == 0 {
			continue
		}
		if visible, _ := els[0].Visible(); !visible {
			continue
		}
		if els[0].Click(proto.InputMouseButtonLeft, 1) == nil {
			time.Sleep(300 * time.Millisecond)
			return true
		}
	}
	return false
}

// removeOverlaysJS deletes modal backdrops and cookie banners that
// survived the click-based strategies, and restores body scrolling that
// modals often pin.
func removeOverlaysJS(s *Session) bool {
	res, err := s.page.Eval(`() => {
		let count = 0;
		document.querySelectorAll('.modal-backdrop, [class*="backdrop"]').forEach(el => {
			el.remove();
			count++;
		});
		document.querySelectorAll('#onetrust-banner-sdk, [class*="cookie-banner"], [class*="cookie-consent"]').forEach(el => {
			el.remove();
			count++;
		});
		document.body.style.overflow = '';
		document.body.style.position = '';
		document.documentElement.style.overflow = '';
		return count;
	}`)
	if err != nil {
		slog.Debug("overlay cleanup failed", "error", err)
		return false
	}
	return res.Value.Int() > 0
}

func clickIfVisible(el *rod.Element) bool {
	if visible, err := el.Visible(); err != nil || !visible {
		return false
	}
	return el.Click(proto.InputMouseButtonLeft, 1) == nil
}

func isInsideModal(el *rod.Element) bool {
	res, err := el.Eval(`() => this.closest('[role="dialog"], .modal, [class*="modal"], [class*="popup"], [class*="overlay"], [class*="interstitial"]') !== null`)
	if err != nil {
		// Can't verify; assume yes like a human would for a button that
		// just appeared over the content.
		return true
	}
	return res.Value.Bool()
}

func isSmallControl(el *rod.Element) bool {
	res, err := el.Eval(`() => {
		const r = this.getBoundingClientRect();
		return r.width > 0 && r.width < 80 && r.height > 0 && r.height < 80;
	}`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

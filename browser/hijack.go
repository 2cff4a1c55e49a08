package browser

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// adHosts is a set of well-known ad and tracking hosts dropped during
// capture. Keeping them out shortens the network-idle wait and keeps
// consent/tracker iframes out of the composite.
var adHosts = map[string]struct{}{
	"doubleclick.net":        {},
	"googlesyndication.com":  {},
	"googleadservices.com":   {},
	"google-analytics.com":   {},
	"googletagmanager.com":   {},
	"googletagservices.com":  {},
	"connect.facebook.net":   {},
	"adnxs.com":              {},
	"adsrvr.org":             {},
	"amazon-adsystem.com":    {},
	"criteo.com":             {},
	"criteo.net":             {},
	"outbrain.com":           {},
	"taboola.com":            {},
	"moatads.com":            {},
	"pubmatic.com":           {},
	"rubiconproject.com":     {},
	"scorecardresearch.com":  {},
	"quantserve.com":         {},
	"hotjar.com":             {},
	"mixpanel.com":           {},
	"segment.io":             {},
	"chartbeat.com":          {},
	"optimizely.com":         {},
	"openx.net":              {},
	"casalemedia.com":        {},
	"demdex.net":             {},
	"bluekai.com":            {},
	"mathtag.com":            {},
	"serving-sys.com":        {},
	"sharethis.com":          {},
	"addthis.com":            {},
}

// isAdHost checks a hostname and its parent domains against the blocklist.
func isAdHost(host string) bool {
	host = strings.ToLower(host)
	if _, ok := adHosts[host]; ok {
		return true
	}
	for {
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
		if _, ok := adHosts[host]; ok {
			return true
		}
	}
}

// mountAdBlock installs a request interceptor that fails requests to
// known ad/tracking hosts and passes everything else through untouched.
// Images, stylesheets and fonts are deliberately NOT filtered: the
// capture needs the page rendered whole.
func mountAdBlock(page *rod.Page) *rod.HijackRouter {
	router := page.HijackRequests()

	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if u, err := url.Parse(ctx.Request.URL().String()); err == nil && isAdHost(u.Hostname()) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks; it exits when router.Stop() is called.
	go router.Run()

	return router
}

// Package extract turns a DOM snapshot into a resource manifest. It is a
// pure function of its input: no browser interaction, byte-identical
// snapshots yield identical manifests.
package extract

import (
	"io"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html/charset"

	"github.com/use-agent/pagesnap/models"
)

// lazyAttrs is the source-attribute priority order. Lazy-load data
// attributes come before src because many pages leave src pointing at a
// placeholder until scroll-triggered loading fires.
var lazyAttrs = []string{"data-src", "data-lazy-src", "data-original", "data-lazy", "src"}

const maxLinkText = 200

var (
	imgSel    = cascadia.MustCompile("img")
	linkSel   = cascadia.MustCompile("a[href]")
	styledSel = cascadia.MustCompile(`[style*="background"]`)

	reBackgroundURL = regexp.MustCompile(`url\(['"]?([^'")]+)['"]?\)`)
)

// Extract parses a DOM snapshot and returns the deduplicated manifest of
// image and link resources, with every URL resolved against baseURL.
// An unreadable snapshot is fatal; individual malformed elements are
// skipped.
func Extract(snapshot io.Reader, baseURL string) (models.ResourceManifest, error) {
	manifest := models.ResourceManifest{
		Images: []models.ImageRef{},
		Links:  []models.LinkRef{},
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return manifest, models.NewCaptureError(models.ErrCodeExtraction,
			"invalid base URL "+baseURL, err)
	}

	decoded, err := charset.NewReader(snapshot, "text/html")
	if err != nil {
		return manifest, models.NewCaptureError(models.ErrCodeExtraction,
			"decode DOM snapshot", err)
	}

	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return manifest, models.NewCaptureError(models.ErrCodeExtraction,
			"parse DOM snapshot", err)
	}

	seen := make(map[string]struct{})

	// Images: dedupe by resolved URL, first occurrence keeps its metadata.
	doc.FindMatcher(imgSel).Each(func(_ int, s *goquery.Selection) {
		src, attr := imageSource(s)
		if src == "" {
			return
		}
		abs := resolve(base, src)
		if abs == "" {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}

		alt, _ := s.Attr("alt")
		manifest.Images = append(manifest.Images, models.ImageRef{
			URL:        abs,
			SourceAttr: attr,
			Alt:        strings.TrimSpace(alt),
		})
	})

	// Background images from inline styles.
	doc.FindMatcher(styledSel).Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		m := reBackgroundURL.FindStringSubmatch(style)
		if m == nil {
			return
		}
		abs := resolve(base, m[1])
		if abs == "" {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		manifest.Images = append(manifest.Images, models.ImageRef{
			URL:        abs,
			SourceAttr: "style",
		})
	})

	// Links are NOT deduplicated: position and context matter downstream.
	doc.FindMatcher(linkSel).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := resolve(base, href)
		if abs == "" {
			return
		}
		text := truncate(strings.TrimSpace(s.Text()), maxLinkText)
		rel, _ := s.Attr("rel")
		manifest.Links = append(manifest.Links, models.LinkRef{
			URL:  abs,
			Text: text,
			Rel:  rel,
		})
	})

	return manifest, nil
}

// imageSource picks the image URL by attribute priority and reports which
// attribute supplied it.
func imageSource(s *goquery.Selection) (src, attr string) {
	for _, a := range lazyAttrs {
		if v, ok := s.Attr(a); ok {
			v = strings.TrimSpace(v)
			if v != "" {
				return v, a
			}
		}
	}
	return "", ""
}

// truncate caps s at max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// resolve turns a raw reference into an absolute http(s) URL, or "" when
// the reference is unusable (data: URI, javascript:, mailto:, bad syntax).
func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

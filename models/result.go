package models

import "time"

// ImageRef is one unique image discovered in the DOM snapshot.
type ImageRef struct {
	// URL is the resolved absolute URL.
	URL string `json:"url"`

	// SourceAttr records which attribute supplied the URL ("data-src",
	// "src", "style", ...). Lazy-load attributes win over src because many
	// pages leave src pointing at a placeholder.
	SourceAttr string `json:"source_attr"`

	Alt string `json:"alt,omitempty"`
}

// LinkRef is one anchor found in the DOM snapshot. Links are not
// deduplicated; position and context matter downstream.
type LinkRef struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
	Rel  string `json:"rel,omitempty"`
}

// ResourceManifest is the deduplicated resource inventory of one page.
// No two ImageRefs share a resolved URL.
type ResourceManifest struct {
	Images []ImageRef `json:"images"`
	Links  []LinkRef  `json:"links"`
}

// DownloadStatus is the terminal state of one asset fetch.
type DownloadStatus string

const (
	DownloadSuccess DownloadStatus = "success"
	DownloadFailed  DownloadStatus = "failed"
)

// DownloadRecord is the immutable outcome of fetching one unique ImageRef.
type DownloadRecord struct {
	Ref ImageRef `json:"ref"`

	// LocalFile is the content-hash-derived filename under images/,
	// empty when the fetch failed. Identical bytes collide to the same
	// name across tasks, which is a deliberate dedup-on-disk property.
	LocalFile string `json:"local_file,omitempty"`

	Status DownloadStatus `json:"status"`
	Reason string         `json:"reason,omitempty"`
	Bytes  int64          `json:"bytes,omitempty"`
}

// StitchedImage describes the full-page composite written to disk.
type StitchedImage struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`

	// Capped is true when the composite hit the configured maximum
	// height and the excess was dropped (degraded, not failed).
	Capped bool `json:"capped,omitempty"`
}

// PageResult is the single record produced for every terminal task,
// success or failure. Immutable once the orchestrator finalizes it; the
// sole input to the batch reporter.
type PageResult struct {
	Task         PageTask         `json:"task"`
	StageReached Stage            `json:"stage_reached"`
	Success      bool             `json:"success"`
	Screenshot   *StitchedImage   `json:"screenshot,omitempty"`
	DOMPath      string           `json:"dom_path,omitempty"`
	ManifestPath string           `json:"manifest_path,omitempty"`
	Manifest     ResourceManifest `json:"-"`
	Downloads    []DownloadRecord `json:"-"`

	// Warnings collects recoverable faults that degraded the task
	// without failing it.
	Warnings []string `json:"warnings,omitempty"`

	// Error is the fatal reason when StageReached is failed.
	Error string `json:"error,omitempty"`

	Duration time.Duration `json:"-"`
}

// DownloadCounts returns (success, failed) tallies over Downloads.
func (r *PageResult) DownloadCounts() (ok, failed int) {
	for _, d := range r.Downloads {
		if d.Status == DownloadSuccess {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// PageSummary is the per-page entry embedded in the batch report.
type PageSummary struct {
	Index            int      `json:"index"`
	Segment          string   `json:"segment"`
	URL              string   `json:"url"`
	PageName         string   `json:"page_name"`
	Stage            Stage    `json:"stage_reached"`
	Success          bool     `json:"success"`
	ScreenshotPath   string   `json:"screenshot,omitempty"`
	DOMPath          string   `json:"dom,omitempty"`
	ManifestPath     string   `json:"manifest,omitempty"`
	ImagesFound      int      `json:"images_found"`
	ImagesDownloaded int      `json:"images_downloaded"`
	LinksFound       int      `json:"links_found"`
	DurationMs       int64    `json:"duration_ms"`
	Warnings         []string `json:"warnings,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// BatchReport is the final aggregate over all page results. It is the
// single source of truth for which pages are complete, degraded, or failed.
type BatchReport struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Total       int           `json:"total"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Pages       []PageSummary `json:"pages"`
}

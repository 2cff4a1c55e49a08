// Package orchestrate sequences the capture pipeline for each page task
// through a fixed state machine and rolls per-page outcomes into the
// batch report. Stages are strictly sequential within a task; a
// recoverable fault degrades the task, a fatal one short-circuits it to
// failed with whatever artifacts were already produced.
package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/use-agent/pagesnap/browser"
	"github.com/use-agent/pagesnap/config"
	"github.com/use-agent/pagesnap/download"
	"github.com/use-agent/pagesnap/extract"
	"github.com/use-agent/pagesnap/layout"
	"github.com/use-agent/pagesnap/models"
	"github.com/use-agent/pagesnap/reveal"
	"github.com/use-agent/pagesnap/robots"
	"github.com/use-agent/pagesnap/stitch"
)

// Orchestrator runs page tasks against a shared browser. Tasks hold no
// shared mutable state; the orchestrator itself is safe for concurrent
// RunTask calls.
type Orchestrator struct {
	browser *browser.Browser
	cfg     *config.Config
	robots  *robots.Checker // nil when the robots pre-check is disabled
}

// New creates an Orchestrator. checker may be nil.
func New(b *browser.Browser, cfg *config.Config, checker *robots.Checker) *Orchestrator {
	return &Orchestrator{browser: b, cfg: cfg, robots: checker}
}

// RunTask drives one task to a terminal state, retrying fatal failures
// with completely fresh state up to the configured attempt count.
// Exactly one PageResult comes back, success or not.
func (o *Orchestrator) RunTask(ctx context.Context, task models.PageTask, dirs layout.TaskDirs) *models.PageResult {
	attempts := o.cfg.Capture.TaskAttempts
	if attempts < 1 {
		attempts = 1
	}

	var result *models.PageResult
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			slog.Info("retrying task", "url", task.URL, "attempt", attempt)
			select {
			case <-ctx.Done():
				return result
			case <-time.After(2 * time.Second):
			}
		}
		result = o.runAttempt(ctx, task, dirs)
		if result.Success {
			break
		}
		// A robots denial is deterministic; retrying cannot change it.
		if strings.HasPrefix(result.Error, models.ErrCodeRobotsDenied) {
			break
		}
	}
	return result
}

// runAttempt walks the state machine once. Every exit path releases the
// session and produces a finalized result.
func (o *Orchestrator) runAttempt(ctx context.Context, task models.PageTask, dirs layout.TaskDirs) *models.PageResult {
	start := time.Now()
	state := models.NewPageState()
	result := &models.PageResult{Task: task, StageReached: models.StagePending}

	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		result.Warnings = append(result.Warnings, msg)
		slog.Warn(msg, "url", task.URL)
	}
	fail := func(err error) *models.PageResult {
		state.Stage = models.StageFailed
		result.Success = false
		result.Error = err.Error()
		result.Duration = time.Since(start)
		slog.Error("task failed", "url", task.URL,
			"stage", result.StageReached.String(), "error", err)
		return result
	}
	enter := func(s models.Stage) {
		state.Stage = s
		result.StageReached = s
		slog.Debug("stage", "url", task.URL, "stage", s.String())
	}

	if o.robots != nil && !o.robots.Allowed(ctx, task.URL) {
		return fail(models.NewCaptureError(models.ErrCodeRobotsDenied,
			"disallowed by robots.txt", nil))
	}

	// ── Navigate ─────────────────────────────────────────────────────
	enter(models.StageNavigating)
	navCtx, navCancel := context.WithTimeout(ctx, o.cfg.Capture.NavigationTimeout)
	session, err := o.browser.Open(navCtx, task.URL)
	navCancel()
	if err != nil {
		return fail(err)
	}
	defer session.Close()

	// From here on a fatal error should still leave a DOM snapshot
	// behind when one can be had.
	defer func() {
		if !result.Success && state.Snapshot == "" {
			o.saveEmergencyDOM(session, task, dirs, result)
		}
	}()

	// ── Popups ───────────────────────────────────────────────────────
	enter(models.StagePopupHandling)
	matched := session.DismissPopups()
	slog.Info("popup handling done", "url", task.URL, "matched", matched)

	// ── Scroll + capture ─────────────────────────────────────────────
	enter(models.StageScrolling)
	reveal.ForceEagerImages(session)

	scrollRes, scrollErr := reveal.ScrollPass(ctx, session, o.cfg.Capture, func(offsetY int) error {
		tile, tileErr := stitch.CaptureTile(session.Page(), offsetY)
		if tileErr != nil {
			warn("tile capture at offset %d failed: %v", offsetY, tileErr)
			return nil
		}
		state.Tiles = append(state.Tiles, tile)
		state.ScrollY = offsetY
		return nil
	})
	state.FinalScrollHeight = scrollRes.FinalHeight
	state.ViewportHeight = scrollRes.ViewportHeight
	if scrollErr != nil {
		if ctx.Err() != nil {
			return fail(models.NewCaptureError(models.ErrCodeTimeout,
				"scroll pass canceled", scrollErr))
		}
		warn("scroll pass ended early: %v", scrollErr)
	}
	slog.Info("scroll pass done", "url", task.URL,
		"steps", scrollRes.Steps, "height", scrollRes.FinalHeight,
		"tiles", len(state.Tiles), "stalled", scrollRes.Stalled)

	// ── Expand ───────────────────────────────────────────────────────
	enter(models.StageExpanding)
	expandRes := reveal.ExpandPass(ctx, session, state, o.cfg.Capture.MaxExpansionClicks)
	reveal.MakeAllVisible(session)
	slog.Info("expansion pass done", "url", task.URL,
		"found", expandRes.Found, "clicked", expandRes.Clicked, "skipped", expandRes.Skipped)

	// ── Extract ──────────────────────────────────────────────────────
	enter(models.StageExtracting)
	snapshot, err := session.HTML()
	if err != nil {
		return fail(err)
	}
	state.Snapshot = snapshot

	manifest, err := extract.Extract(strings.NewReader(snapshot), task.URL)
	if err != nil {
		return fail(err)
	}
	result.Manifest = manifest
	slog.Info("extraction done", "url", task.URL,
		"images", len(manifest.Images), "links", len(manifest.Links))

	// ── Download ─────────────────────────────────────────────────────
	enter(models.StageDownloading)
	dl := download.New(o.cfg.Download, o.cfg.Browser.Proxy)
	result.Downloads = dl.All(ctx, manifest.Images, dirs.Images)
	if okCount, failedCount := result.DownloadCounts(); failedCount > 0 {
		warn("%d of %d image downloads failed", failedCount, okCount+failedCount)
	}

	// ── Save ─────────────────────────────────────────────────────────
	enter(models.StageSaving)
	domPath := dirs.DOMPath(task.PageName)
	if err := os.WriteFile(domPath, []byte(snapshot), 0o644); err != nil {
		return fail(models.NewCaptureError(models.ErrCodeFilesystem,
			"write DOM snapshot "+domPath, err))
	}
	result.DOMPath = domPath

	if len(state.Tiles) > 0 {
		composite, stitchErr := stitch.WriteComposite(
			dirs.CompositePath(task.PageName),
			state.Tiles,
			state.FinalScrollHeight,
			stitch.Options{
				Quality:   o.cfg.Capture.ScreenshotQuality,
				MaxHeight: o.cfg.Capture.MaxCompositeHeight,
				MaxWidth:  o.cfg.Capture.MaxCompositeWidth,
			})
		if stitchErr != nil {
			// A filesystem fault here is fatal; a stitch fault only
			// costs the composite.
			if models.IsFatal(stitchErr) {
				return fail(stitchErr)
			}
			warn("composite stitch failed: %v", stitchErr)
		} else {
			result.Screenshot = composite
			if composite.Capped {
				warn("composite height capped at %d of %d px",
					composite.Height, state.FinalScrollHeight)
			}
		}
	} else {
		warn("no tiles captured, composite skipped")
	}
	state.Tiles = nil

	manifestPath := dirs.ManifestPath(task.PageName)
	if err := o.writeManifest(manifestPath, task, result); err != nil {
		return fail(err)
	}
	result.ManifestPath = manifestPath

	// ── Done ─────────────────────────────────────────────────────────
	enter(models.StageCompleted)
	result.Success = true
	result.Duration = time.Since(start)
	slog.Info("task completed", "url", task.URL,
		"durationMs", result.Duration.Milliseconds(), "warnings", len(result.Warnings))
	return result
}

// manifestFile is the on-disk shape consumed by the downstream
// extraction stage: resolved resources plus download outcomes.
type manifestFile struct {
	URL        string                  `json:"url"`
	Segment    string                  `json:"segment"`
	PageName   string                  `json:"page_name"`
	CapturedAt time.Time               `json:"captured_at"`
	Images     []models.DownloadRecord `json:"images"`
	Links      []models.LinkRef        `json:"links"`
}

func (o *Orchestrator) writeManifest(path string, task models.PageTask, result *models.PageResult) error {
	doc := manifestFile{
		URL:        task.URL,
		Segment:    task.Segment,
		PageName:   task.PageName,
		CapturedAt: time.Now().UTC(),
		Images:     result.Downloads,
		Links:      result.Manifest.Links,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return models.NewCaptureError(models.ErrCodeInternal,
			"marshal resource manifest", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return models.NewCaptureError(models.ErrCodeFilesystem,
			"write resource manifest "+path, err)
	}
	return nil
}

// saveEmergencyDOM preserves whatever markup the page holds when a task
// fails mid-pipeline, so the failure still leaves a partial artifact.
func (o *Orchestrator) saveEmergencyDOM(session *browser.Session, task models.PageTask, dirs layout.TaskDirs, result *models.PageResult) {
	html, err := session.HTML()
	if err != nil || html == "" {
		return
	}
	path := dirs.EmergencyDOMPath(task.PageName)
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		slog.Debug("emergency DOM save failed", "url", task.URL, "error", err)
		return
	}
	result.DOMPath = path
	slog.Info("saved emergency DOM", "url", task.URL, "path", path)
}

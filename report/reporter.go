// Package report aggregates per-page results into the batch report. The
// Reporter is the single point of cross-task synchronization: record
// calls are serialized, everything else in a task is task-private.
package report

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/use-agent/pagesnap/models"
)

// Reporter accumulates one summary per finished task. Safe for
// concurrent use.
type Reporter struct {
	mu        sync.Mutex
	summaries []models.PageSummary
	succeeded int
	failed    int
	final     *models.BatchReport
}

// New creates an empty Reporter.
func New() *Reporter {
	return &Reporter{}
}

// Record ingests one terminal PageResult. Exactly one call per task.
func (r *Reporter) Record(res *models.PageResult) {
	ok, _ := res.DownloadCounts()

	summary := models.PageSummary{
		Index:            res.Task.Index,
		Segment:          res.Task.Segment,
		URL:              res.Task.URL,
		PageName:         res.Task.PageName,
		Stage:            res.StageReached,
		Success:          res.Success,
		DOMPath:          res.DOMPath,
		ManifestPath:     res.ManifestPath,
		ImagesFound:      len(res.Manifest.Images),
		ImagesDownloaded: ok,
		LinksFound:       len(res.Manifest.Links),
		DurationMs:       res.Duration.Milliseconds(),
		Warnings:         res.Warnings,
		Error:            res.Error,
	}
	if res.Screenshot != nil {
		summary.ScreenshotPath = res.Screenshot.Path
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, summary)
	if res.Success {
		r.succeeded++
	} else {
		r.failed++
	}
}

// Finalize builds the batch report, sorting summaries back into input
// order. Idempotent: later calls return the same aggregate.
func (r *Reporter) Finalize() *models.BatchReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.final != nil {
		return r.final
	}

	pages := make([]models.PageSummary, len(r.summaries))
	copy(pages, r.summaries)
	sort.Slice(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })

	r.final = &models.BatchReport{
		GeneratedAt: time.Now().UTC(),
		Total:       r.succeeded + r.failed,
		Succeeded:   r.succeeded,
		Failed:      r.failed,
		Pages:       pages,
	}
	return r.final
}

// WriteJSON finalizes the report and writes it to path.
func (r *Reporter) WriteJSON(path string) error {
	rep := r.Finalize()
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return models.NewCaptureError(models.ErrCodeInternal,
			"marshal batch report", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return models.NewCaptureError(models.ErrCodeFilesystem,
			"write batch report "+path, err)
	}
	return nil
}

package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/pagesnap/models"
)

func sampleResult(index int, success bool) *models.PageResult {
	res := &models.PageResult{
		Task: models.PageTask{
			Index:    index,
			Segment:  "retail",
			URL:      "https://example.com/p",
			PageName: "p",
		},
		StageReached: models.StageCompleted,
		Success:      success,
		Duration:     1500 * time.Millisecond,
	}
	if !success {
		res.StageReached = models.StageNavigating
		res.Error = "NAVIGATION_FAILED: connection refused"
	}
	return res
}

func TestReporter_Counts(t *testing.T) {
	r := New()
	r.Record(sampleResult(0, true))
	r.Record(sampleResult(1, false))
	r.Record(sampleResult(2, true))

	rep := r.Finalize()
	if rep.Total != 3 {
		t.Errorf("Total = %d, want 3", rep.Total)
	}
	if rep.Succeeded != 2 || rep.Failed != 1 {
		t.Errorf("Succeeded/Failed = %d/%d, want 2/1", rep.Succeeded, rep.Failed)
	}
	if rep.Succeeded+rep.Failed != rep.Total {
		t.Errorf("succeeded + failed = %d, must equal total %d",
			rep.Succeeded+rep.Failed, rep.Total)
	}
	if len(rep.Pages) != rep.Total {
		t.Errorf("len(Pages) = %d, want %d", len(rep.Pages), rep.Total)
	}
}

func TestReporter_SortsByInputOrder(t *testing.T) {
	r := New()
	// Records arrive in completion order, not input order.
	for _, i := range []int{3, 0, 2, 1} {
		r.Record(sampleResult(i, true))
	}

	rep := r.Finalize()
	for want, page := range rep.Pages {
		if page.Index != want {
			t.Errorf("Pages[%d].Index = %d, want %d", want, page.Index, want)
		}
	}
}

func TestReporter_FinalizeIdempotent(t *testing.T) {
	r := New()
	r.Record(sampleResult(0, true))

	first := r.Finalize()
	second := r.Finalize()
	if first != second {
		t.Error("Finalize must return the same aggregate on repeat calls")
	}
}

func TestReporter_ConcurrentRecords(t *testing.T) {
	r := New()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record(sampleResult(i, i%2 == 0))
		}()
	}
	wg.Wait()

	rep := r.Finalize()
	if rep.Total != n {
		t.Errorf("Total = %d, want %d", rep.Total, n)
	}
	if rep.Succeeded != n/2 || rep.Failed != n/2 {
		t.Errorf("Succeeded/Failed = %d/%d, want %d/%d",
			rep.Succeeded, rep.Failed, n/2, n/2)
	}
}

func TestReporter_SummaryFields(t *testing.T) {
	res := sampleResult(0, true)
	res.Manifest = models.ResourceManifest{
		Images: []models.ImageRef{{URL: "https://example.com/a.jpg"}},
		Links:  []models.LinkRef{{URL: "https://example.com/x"}, {URL: "https://example.com/y"}},
	}
	res.Downloads = []models.DownloadRecord{
		{Status: models.DownloadSuccess},
		{Status: models.DownloadFailed, Reason: "timeout"},
	}
	res.Screenshot = &models.StitchedImage{Path: "/out/p_full_page.jpg", Width: 1280, Height: 4000}
	res.Warnings = []string{"1 of 2 image downloads failed"}

	r := New()
	r.Record(res)
	page := r.Finalize().Pages[0]

	if page.ImagesFound != 1 {
		t.Errorf("ImagesFound = %d, want 1", page.ImagesFound)
	}
	if page.ImagesDownloaded != 1 {
		t.Errorf("ImagesDownloaded = %d, want 1", page.ImagesDownloaded)
	}
	if page.LinksFound != 2 {
		t.Errorf("LinksFound = %d, want 2", page.LinksFound)
	}
	if page.ScreenshotPath != "/out/p_full_page.jpg" {
		t.Errorf("ScreenshotPath = %q", page.ScreenshotPath)
	}
	if page.DurationMs != 1500 {
		t.Errorf("DurationMs = %d, want 1500", page.DurationMs)
	}
	if len(page.Warnings) != 1 {
		t.Errorf("Warnings = %v", page.Warnings)
	}
}

func TestReporter_WriteJSON(t *testing.T) {
	r := New()
	r.Record(sampleResult(0, true))
	r.Record(sampleResult(1, false))

	path := filepath.Join(t.TempDir(), "batch_report.json")
	if err := r.WriteJSON(path); err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("report file missing: %v", err)
	}
	var rep models.BatchReport
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if rep.Total != 2 || rep.Succeeded != 1 || rep.Failed != 1 {
		t.Errorf("round-tripped counts = %d/%d/%d", rep.Total, rep.Succeeded, rep.Failed)
	}
	if rep.Pages[1].Error == "" {
		t.Error("failed page should carry its error in the report")
	}
}

package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/pagesnap/config"
	"github.com/use-agent/pagesnap/models"
)

func testConfig() config.DownloadConfig {
	return config.DownloadConfig{
		Concurrency:  4,
		Timeout:      5 * time.Second,
		MaxBytes:     1 << 20,
		PerHostRPS:   1000,
		PerHostBurst: 100,
	}
}

// pngBytes is a minimal header; the downloader never decodes bodies.
var pngBytes = []byte("\x89PNG\r\n\x1a\nfakepixels")

func TestFetchOne_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := New(testConfig(), "")
	rec := d.fetchOne(context.Background(), models.ImageRef{URL: srv.URL + "/pic"}, dir)

	if rec.Status != models.DownloadSuccess {
		t.Fatalf("status = %s, reason = %q", rec.Status, rec.Reason)
	}
	if !strings.HasSuffix(rec.LocalFile, ".png") {
		t.Errorf("LocalFile = %q, want .png suffix from content type", rec.LocalFile)
	}
	if rec.Bytes != int64(len(pngBytes)) {
		t.Errorf("Bytes = %d, want %d", rec.Bytes, len(pngBytes))
	}
	data, err := os.ReadFile(filepath.Join(dir, rec.LocalFile))
	if err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}
	if string(data) != string(pngBytes) {
		t.Error("file content does not match served body")
	}
}

func TestFetchOne_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := New(testConfig(), "")
	rec := d.fetchOne(context.Background(), models.ImageRef{URL: srv.URL + "/gone.png"}, t.TempDir())

	if rec.Status != models.DownloadFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}
	if rec.Reason != "non-2xx status" {
		t.Errorf("reason = %q, want non-2xx status", rec.Reason)
	}
	if rec.LocalFile != "" {
		t.Errorf("failed record must not carry a file, got %q", rec.LocalFile)
	}
}

func TestFetchOne_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	d := New(cfg, "")
	rec := d.fetchOne(context.Background(), models.ImageRef{URL: srv.URL + "/slow.png"}, t.TempDir())

	if rec.Status != models.DownloadFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}
	if rec.Reason != "timeout" {
		t.Errorf("reason = %q, want timeout", rec.Reason)
	}
}

func TestFetchOne_ExtensionFallbackFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("<svg/>"))
	}))
	defer srv.Close()

	d := New(testConfig(), "")
	rec := d.fetchOne(context.Background(), models.ImageRef{URL: srv.URL + "/logo.svg"}, t.TempDir())

	if rec.Status != models.DownloadSuccess {
		t.Fatalf("status = %s, reason = %q", rec.Status, rec.Reason)
	}
	if !strings.HasSuffix(rec.LocalFile, ".svg") {
		t.Errorf("LocalFile = %q, want .svg suffix from URL path", rec.LocalFile)
	}
}

func TestFetchOne_UnreadableContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>not an image</html>"))
	}))
	defer srv.Close()

	d := New(testConfig(), "")
	rec := d.fetchOne(context.Background(), models.ImageRef{URL: srv.URL + "/page"}, t.TempDir())

	if rec.Status != models.DownloadFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}
	if rec.Reason != "unreadable content-type" {
		t.Errorf("reason = %q, want unreadable content-type", rec.Reason)
	}
}

func TestFetchOne_ContentHashDedup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := New(testConfig(), "")
	a := d.fetchOne(context.Background(), models.ImageRef{URL: srv.URL + "/a.png"}, dir)
	b := d.fetchOne(context.Background(), models.ImageRef{URL: srv.URL + "/b.png"}, dir)

	if a.Status != models.DownloadSuccess || b.Status != models.DownloadSuccess {
		t.Fatalf("fetches failed: %q / %q", a.Reason, b.Reason)
	}
	if a.LocalFile != b.LocalFile {
		t.Errorf("identical bytes must share one file, got %q and %q", a.LocalFile, b.LocalFile)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 deduped file on disk, got %d", len(entries))
	}
}

func TestAll_OneRecordPerRefInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte(r.URL.Path)) // distinct bodies, distinct hashes
	}))
	defer srv.Close()

	refs := []models.ImageRef{
		{URL: srv.URL + "/ok-1.png"},
		{URL: srv.URL + "/missing-1.png"},
		{URL: srv.URL + "/ok-2.png"},
		{URL: "::not-a-url"},
		{URL: srv.URL + "/ok-3.png"},
	}

	d := New(testConfig(), "")
	records := d.All(context.Background(), refs, t.TempDir())

	if len(records) != len(refs) {
		t.Fatalf("got %d records for %d refs", len(records), len(refs))
	}
	ok, failed := 0, 0
	for i, rec := range records {
		if rec.Ref.URL != refs[i].URL {
			t.Errorf("record[%d] is for %q, want %q (input order)", i, rec.Ref.URL, refs[i].URL)
		}
		if rec.Status == models.DownloadSuccess {
			ok++
		} else {
			failed++
		}
	}
	if ok != 3 || failed != 2 {
		t.Errorf("counts = %d ok, %d failed; want 3 and 2", ok, failed)
	}
	if ok+failed != len(refs) {
		t.Errorf("ok+failed = %d, want %d", ok+failed, len(refs))
	}
}

func TestAll_ZeroConcurrencyStillCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Concurrency = 0
	d := New(cfg, "")

	refs := []models.ImageRef{
		{URL: srv.URL + "/a.png"},
		{URL: srv.URL + "/b.png"},
	}
	dir := t.TempDir()

	done := make(chan []models.DownloadRecord, 1)
	go func() {
		done <- d.All(context.Background(), refs, dir)
	}()

	select {
	case records := <-done:
		if len(records) != len(refs) {
			t.Fatalf("got %d records for %d refs", len(records), len(refs))
		}
		for i, rec := range records {
			if rec.Status != models.DownloadSuccess {
				t.Errorf("record[%d] = %s (%s)", i, rec.Status, rec.Reason)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("All did not return with a zero configured concurrency")
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		urlPath     string
		want        string
		ok          bool
	}{
		{"jpeg type", "image/jpeg", "/x", ".jpg", true},
		{"type with params", "image/png; charset=utf-8", "/x", ".png", true},
		{"fallback to path", "application/octet-stream", "/img/photo.JPG", ".jpg", true},
		{"no type, known path", "", "/icons/fav.ico", ".ico", true},
		{"unusable both", "text/plain", "/page.html", "", false},
		{"empty both", "", "/page", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extension(tt.contentType, tt.urlPath)
			if got != tt.want || ok != tt.ok {
				t.Errorf("extension(%q, %q) = (%q, %v), want (%q, %v)",
					tt.contentType, tt.urlPath, got, ok, tt.want, tt.ok)
			}
		})
	}
}

// Package download fetches resolved image URLs with bounded parallelism
// and per-item failure tracking. A failed fetch never affects its
// siblings; every unique ImageRef yields exactly one DownloadRecord.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/pagesnap/config"
	"github.com/use-agent/pagesnap/models"
)

// extByType maps image content types to file extensions.
var extByType = map[string]string{
	"image/jpeg":               ".jpg",
	"image/png":                ".png",
	"image/gif":                ".gif",
	"image/webp":               ".webp",
	"image/svg+xml":            ".svg",
	"image/avif":               ".avif",
	"image/bmp":                ".bmp",
	"image/x-icon":             ".ico",
	"image/vnd.microsoft.icon": ".ico",
}

// knownExts allows a URL-path fallback when the server omits or mangles
// the content type.
var knownExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
	".svg": {}, ".ico": {}, ".bmp": {}, ".avif": {},
}

// Downloader fetches image assets for one task. Each task gets its own
// Downloader; pools are never shared across tasks.
type Downloader struct {
	client *http.Client
	cfg    config.DownloadConfig
	hosts  *hostLimiters
}

// New creates a Downloader with a Chrome-fingerprint transport.
func New(cfg config.DownloadConfig, proxy string) *Downloader {
	return &Downloader{
		client: &http.Client{Transport: newTransport(proxy)},
		cfg:    cfg,
		hosts:  newHostLimiters(cfg.PerHostRPS, cfg.PerHostBurst, 256),
	}
}

// All fetches every ImageRef concurrently, bounded by the configured
// worker limit, writing successful bodies under destDir with
// content-hash-derived names. The returned slice has one record per
// input ref, in input order; success + failed == len(images).
func (d *Downloader) All(ctx context.Context, images []models.ImageRef, destDir string) []models.DownloadRecord {
	records := make([]models.DownloadRecord, len(images))

	// SetLimit(0) would block every g.Go forever.
	limit := d.cfg.Concurrency
	if limit < 1 {
		limit = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, ref := range images {
		i, ref := i, ref
		g.Go(func() error {
			records[i] = d.fetchOne(ctx, ref, destDir)
			return nil
		})
	}
	_ = g.Wait()

	return records
}

// fetchOne downloads a single asset. All failure modes produce a Failed
// record with a reason; nothing here is fatal to the task.
func (d *Downloader) fetchOne(ctx context.Context, ref models.ImageRef, destDir string) models.DownloadRecord {
	rec := models.DownloadRecord{Ref: ref, Status: models.DownloadFailed}

	u, err := url.Parse(ref.URL)
	if err != nil {
		rec.Reason = "invalid URL"
		return rec
	}

	if err := d.hosts.get(u.Host).Wait(ctx); err != nil {
		rec.Reason = "canceled"
		return rec
	}

	fetchCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, ref.URL, nil)
	if err != nil {
		rec.Reason = "invalid URL"
		return rec
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			rec.Reason = "timeout"
		} else {
			rec.Reason = fmt.Sprintf("request error: %v", err)
		}
		slog.Debug("asset fetch failed", "url", ref.URL, "reason", rec.Reason)
		return rec
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rec.Reason = "non-2xx status"
		slog.Debug("asset fetch failed", "url", ref.URL, "status", resp.StatusCode)
		return rec
	}

	ext, ok := extension(resp.Header.Get("Content-Type"), u.Path)
	if !ok {
		rec.Reason = "unreadable content-type"
		return rec
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.cfg.MaxBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			rec.Reason = "timeout"
		} else {
			rec.Reason = fmt.Sprintf("read body: %v", err)
		}
		return rec
	}

	// Content-hash filename: identical bytes collide to the same file
	// across pages and tasks, deduplicating on disk for free.
	sum := sha256.Sum256(body)
	name := hex.EncodeToString(sum[:])[:16] + ext
	dest := filepath.Join(destDir, name)

	if _, statErr := os.Stat(dest); statErr != nil {
		if err := os.WriteFile(dest, body, 0o644); err != nil {
			rec.Reason = fmt.Sprintf("write file: %v", err)
			return rec
		}
	}

	rec.Status = models.DownloadSuccess
	rec.LocalFile = name
	rec.Bytes = int64(len(body))
	rec.Reason = ""
	return rec
}

// extension resolves the local file extension from the content type,
// falling back to a recognized URL-path extension.
func extension(contentType, urlPath string) (string, bool) {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			if ext, ok := extByType[mt]; ok {
				return ext, true
			}
		}
	}
	if ext := strings.ToLower(path.Ext(urlPath)); ext != "" {
		if _, ok := knownExts[ext]; ok {
			return ext, true
		}
	}
	return "", false
}

// Command pagesnap captures every page listed in an Excel workbook:
// full-page stitched screenshot, DOM snapshot, resource manifest, and
// downloaded images, one output directory per page, plus a batch report.
//
// Usage:
//
//	pagesnap [-out DIR] workbook.xlsx
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/use-agent/pagesnap/browser"
	"github.com/use-agent/pagesnap/config"
	"github.com/use-agent/pagesnap/ingest"
	"github.com/use-agent/pagesnap/orchestrate"
	"github.com/use-agent/pagesnap/robots"
	"github.com/use-agent/pagesnap/webhook"
)

func main() {
	os.Exit(run())
}

func run() int {
	outDir := flag.String("out", "captures", "base output directory")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pagesnap [-out DIR] workbook.xlsx")
		return 2
	}
	workbook := flag.Arg(0)

	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("pagesnap starting",
		"workbook", workbook,
		"out", *outDir,
		"maxSessions", cfg.Capture.MaxConcurrentSessions,
	)

	// ── 3. Read the task list ───────────────────────────────────────
	rows, skipped, err := ingest.ReadWorkbook(workbook)
	if err != nil {
		slog.Error("failed to read workbook", "path", workbook, "error", err)
		return 1
	}
	for _, s := range skipped {
		slog.Warn("skipping workbook row", "line", s.Line, "reason", s.Reason)
	}
	if len(rows) == 0 {
		slog.Error("workbook contains no usable rows", "path", workbook)
		return 1
	}
	slog.Info("workbook loaded", "tasks", len(rows), "skipped", len(skipped))

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		slog.Error("failed to create output directory", "path", *outDir, "error", err)
		return 1
	}

	// ── 4. Launch browser ───────────────────────────────────────────
	b, err := browser.New(cfg.Browser, cfg.Capture.MaxConcurrentSessions)
	if err != nil {
		slog.Error("failed to launch browser", "error", err)
		return 1
	}
	defer b.Close()

	var checker *robots.Checker
	if cfg.Robots.Respect {
		checker = robots.New(cfg.Robots.UserAgent)
	}

	// ── 5. Run the batch ────────────────────────────────────────────
	// SIGINT/SIGTERM cancels the context; in-flight tasks finish their
	// current stage and record a result, queued tasks record canceled.
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch := orchestrate.New(b, cfg, checker)
	reporter := orch.RunBatch(ctx, rows, *outDir)

	// ── 6. Write the batch report ───────────────────────────────────
	rep := reporter.Finalize()
	reportPath := filepath.Join(*outDir, "batch_report.json")
	if err := reporter.WriteJSON(reportPath); err != nil {
		slog.Error("failed to write batch report", "path", reportPath, "error", err)
		return 1
	}
	slog.Info("batch report written",
		"path", reportPath,
		"total", rep.Total,
		"succeeded", rep.Succeeded,
		"failed", rep.Failed,
	)

	// ── 7. Notify ───────────────────────────────────────────────────
	if cfg.Webhook.URL != "" {
		webhook.NotifyCompleted(context.Background(), cfg.Webhook.URL, cfg.Webhook.Secret, rep)
	}

	if rep.Failed > 0 {
		return 1
	}
	return 0
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

package orchestrate

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/pagesnap/ingest"
	"github.com/use-agent/pagesnap/layout"
	"github.com/use-agent/pagesnap/models"
	"github.com/use-agent/pagesnap/report"
)

// RunBatch executes every row as an isolated page task with a bounded
// number of concurrent browser sessions. A failed task never stops the
// batch; each outcome lands in the returned reporter exactly once.
func (o *Orchestrator) RunBatch(ctx context.Context, rows []ingest.Row, baseDir string) *report.Reporter {
	reporter := report.New()
	limit := o.cfg.Capture.MaxConcurrentSessions
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	start := time.Now()
	slog.Info("batch started", "tasks", len(rows), "concurrency", limit)

	for i, row := range rows {
		task := models.PageTask{
			Index:    i,
			Segment:  row.Segment,
			URL:      row.URL,
			PageName: layout.PageName(row.URL),
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				reporter.Record(canceledResult(task))
				return nil
			}
			dirs, err := layout.Prepare(baseDir, task.Segment, task.URL)
			if err != nil {
				reporter.Record(&models.PageResult{
					Task:         task,
					StageReached: models.StagePending,
					Error:        err.Error(),
				})
				return nil
			}
			task.OutputDir = dirs.Root
			reporter.Record(o.RunTask(gctx, task, dirs))
			return nil
		})
	}
	_ = g.Wait() // workers never return errors, outcomes go through the reporter

	slog.Info("batch finished",
		"tasks", len(rows), "durationMs", time.Since(start).Milliseconds())
	return reporter
}

func canceledResult(task models.PageTask) *models.PageResult {
	return &models.PageResult{
		Task:         task,
		StageReached: models.StagePending,
		Error: models.NewCaptureError(models.ErrCodeTimeout,
			"batch canceled before task started", nil).Error(),
	}
}

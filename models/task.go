package models

import (
	"fmt"
	"image"
)

// Stage identifies how far a page task has progressed. Transitions are
// sequential and one-directional; no stage is re-entered within a task.
type Stage int

const (
	StagePending Stage = iota
	StageNavigating
	StagePopupHandling
	StageScrolling
	StageExpanding
	StageExtracting
	StageDownloading
	StageSaving
	StageCompleted
	StageFailed
)

var stageNames = [...]string{
	"pending",
	"navigating",
	"popup_handling",
	"scrolling",
	"expanding",
	"extracting",
	"downloading",
	"saving",
	"completed",
	"failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Terminal reports whether the stage is a terminal state.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// MarshalText makes Stage serialize as its name in JSON output.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a stage name, for consumers reading a report back.
func (s *Stage) UnmarshalText(text []byte) error {
	name := string(text)
	for i, n := range stageNames {
		if n == name {
			*s = Stage(i)
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", name)
}

// PageTask is the immutable identity of one capture unit: a spreadsheet row
// resolved to a URL, a segment label, and an output directory. Created once
// per input row and owned exclusively by one orchestrator run.
type PageTask struct {
	// Index is the zero-based position of the row in the input sheet.
	// The batch report sorts summaries by it at finalize time.
	Index int `json:"index"`

	Segment  string `json:"segment"`
	URL      string `json:"url"`
	PageName string `json:"page_name"`

	// OutputDir is the task's private directory, produced by the layout
	// collaborator. The engine only writes inside it.
	OutputDir string `json:"-"`
}

// ScreenshotTile is one viewport capture taken at a known scroll offset
// during the scroll pass. Tiles are ordered by increasing OffsetY and
// consumed exactly once by the stitcher.
type ScreenshotTile struct {
	OffsetY int
	Width   int
	Height  int
	Image   image.Image
}

// PageState is the mutable working state of a single task, owned by the
// orchestrator for the task's lifetime and discarded at terminal state.
// It is never shared across tasks or retries.
type PageState struct {
	Stage Stage

	// ScrollY is the current scroll position during the scroll pass.
	ScrollY int

	// FinalScrollHeight is the last recorded page scroll-height. It is
	// authoritative for the composite height even if the layout shifted
	// mid-pass.
	FinalScrollHeight int

	// ViewportHeight is captured once after navigation.
	ViewportHeight int

	// Clicked tracks structural keys of expansion elements already
	// clicked, so a toggle is never clicked twice in one task.
	Clicked map[string]struct{}

	Tiles    []ScreenshotTile
	Snapshot string
}

// NewPageState returns a fresh PageState in the pending stage.
func NewPageState() *PageState {
	return &PageState{
		Stage:   StagePending,
		Clicked: make(map[string]struct{}),
	}
}

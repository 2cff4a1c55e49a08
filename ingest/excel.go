// Package ingest reads the input spreadsheet into the ordered task list.
// It is a collaborator of the capture engine: the engine consumes the
// {segment, url} rows and never touches the workbook itself.
package ingest

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/use-agent/pagesnap/models"
)

// Row is one parsed spreadsheet row.
type Row struct {
	// Line is the 1-based sheet row, kept for error reporting.
	Line    int
	Segment string
	URL     string
}

// SkippedRow records why an input row was not turned into a task.
type SkippedRow struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ReadWorkbook opens an xlsx file and parses the first sheet.
func ReadWorkbook(path string) ([]Row, []SkippedRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, models.NewCaptureError(models.ErrCodeInvalidInput,
			"open workbook "+path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, models.NewCaptureError(models.ErrCodeInvalidInput,
			"workbook has no sheets", nil)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, models.NewCaptureError(models.ErrCodeInvalidInput,
			"read sheet "+sheets[0], err)
	}
	return parseRows(rows)
}

// parseRows locates the segment and URL columns from the header row and
// validates each data row. Header matching is by substring: a column
// containing "segment" holds the segment, one containing "url" or
// "source" holds the page URL. Missing headers fall back to columns A/B.
func parseRows(rows [][]string) ([]Row, []SkippedRow, error) {
	if len(rows) == 0 {
		return nil, nil, models.NewCaptureError(models.ErrCodeInvalidInput,
			"sheet is empty", nil)
	}

	segCol, urlCol := detectColumns(rows[0])

	var (
		parsed  []Row
		skipped []SkippedRow
	)
	for i, row := range rows[1:] {
		line := i + 2 // 1-based, after header
		seg := cell(row, segCol)
		u := cell(row, urlCol)

		if reason := validate(u); reason != "" {
			skipped = append(skipped, SkippedRow{Line: line, Reason: reason})
			continue
		}
		parsed = append(parsed, Row{Line: line, Segment: seg, URL: u})
	}

	if len(parsed) == 0 {
		return nil, skipped, models.NewCaptureError(models.ErrCodeInvalidInput,
			fmt.Sprintf("no usable rows (%d skipped)", len(skipped)), nil)
	}
	return parsed, skipped, nil
}

func detectColumns(header []string) (segCol, urlCol int) {
	segCol, urlCol = 0, 1
	for i, h := range header {
		switch lower := strings.ToLower(h); {
		case strings.Contains(lower, "segment"):
			segCol = i
		case strings.Contains(lower, "url"), strings.Contains(lower, "source"):
			urlCol = i
		}
	}
	return segCol, urlCol
}

func validate(rawURL string) string {
	if strings.TrimSpace(rawURL) == "" {
		return "url is empty"
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return "url must start with http:// or https://"
	}
	return ""
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Package layout owns the output-folder convention: one directory per page
// task named {segment}__{page-name}, with images/ and screenshots/ children.
// The capture engine only writes into the paths handed out here.
package layout

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/use-agent/pagesnap/models"
)

const maxNameLen = 80

var (
	reUnsafe    = regexp.MustCompile(`[<>:"/\\|?*]`)
	reSpaces    = regexp.MustCompile(`\s+`)
	reUnder     = regexp.MustCompile(`_+`)
	rePageExt   = regexp.MustCompile(`(?i)\.(aspx|html|htm|php)$`)
)

// Sanitize converts an arbitrary label into a safe directory component.
func Sanitize(name string) string {
	name = reUnsafe.ReplaceAllString(name, "_")
	name = reSpaces.ReplaceAllString(name, "_")
	name = reUnder.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return name
}

// PageName derives a readable name from the last URL path element,
// falling back to the host when the path is empty.
func PageName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Sanitize(rawURL)
	}
	path := strings.TrimRight(u.Path, "/")
	name := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		name = path[i+1:]
	}
	name = rePageExt.ReplaceAllString(name, "")
	if name == "" {
		name = strings.ReplaceAll(u.Host, ".", "_")
	}
	return Sanitize(name)
}

// TaskDirs is the resolved directory set for one page task.
type TaskDirs struct {
	Root        string
	Images      string
	Screenshots string
}

// Prepare creates the task directory tree under base and returns it.
func Prepare(base, segment, rawURL string) (TaskDirs, error) {
	name := fmt.Sprintf("%s__%s", Sanitize(segment), PageName(rawURL))
	root := filepath.Join(base, name)
	dirs := TaskDirs{
		Root:        root,
		Images:      filepath.Join(root, "images"),
		Screenshots: filepath.Join(root, "screenshots"),
	}
	for _, d := range []string{dirs.Root, dirs.Images, dirs.Screenshots} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return TaskDirs{}, models.NewCaptureError(models.ErrCodeFilesystem,
				"create output directory "+d, err)
		}
	}
	return dirs, nil
}

// DOMPath returns the DOM snapshot path for a page.
func (d TaskDirs) DOMPath(pageName string) string {
	return filepath.Join(d.Root, pageName+"_dom.html")
}

// EmergencyDOMPath is where a partial snapshot goes when the task fails
// after navigation.
func (d TaskDirs) EmergencyDOMPath(pageName string) string {
	return filepath.Join(d.Root, pageName+"_emergency.html")
}

// ManifestPath returns the resource manifest path for a page.
func (d TaskDirs) ManifestPath(pageName string) string {
	return filepath.Join(d.Root, pageName+"_manifest.json")
}

// CompositePath returns the stitched full-page image path.
func (d TaskDirs) CompositePath(pageName string) string {
	return filepath.Join(d.Screenshots, pageName+"_full_page.jpg")
}

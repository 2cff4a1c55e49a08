// Package stitch composes viewport tiles captured during the scroll pass
// into one full-page image. The composition itself is pure; only the
// capture glue in capture.go talks to the browser.
package stitch

import (
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os"

	xdraw "golang.org/x/image/draw"

	"github.com/use-agent/pagesnap/models"
)

// Options controls composite encoding and size limits.
type Options struct {
	// Quality is the JPEG quality (1-100).
	Quality int

	// MaxHeight caps the composite pixel height. Exceeding it drops the
	// excess and marks the result degraded rather than failing the task.
	MaxHeight int

	// MaxWidth downscales wider composites, preserving aspect ratio.
	// Zero disables.
	MaxWidth int
}

// Compose concatenates tiles into a single image of height finalHeight
// (or the cap, whichever is smaller). For each adjacent pair the overlap
// is max(0, prevOffset+prevHeight-curOffset) rows, cropped from the top
// of the later tile, so the composite carries no duplicated band and no
// gap. Offsets must be non-decreasing; the caller is responsible for
// appending a bottom-anchored tile when the last one does not reach
// finalHeight.
func Compose(tiles []models.ScreenshotTile, finalHeight int, maxHeight int) (*image.RGBA, bool, error) {
	if len(tiles) == 0 {
		return nil, false, models.NewCaptureError(models.ErrCodeStitch,
			"no tiles to compose", nil)
	}

	width := tiles[0].Width
	capped := false
	height := finalHeight
	if maxHeight > 0 && height > maxHeight {
		height = maxHeight
		capped = true
	}
	if height <= 0 {
		return nil, false, models.NewCaptureError(models.ErrCodeStitch,
			"composite height is zero", nil)
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))

	prevBottom := 0
	for i, t := range tiles {
		if t.Image == nil || t.Width != width {
			slog.Debug("skipping malformed tile", "index", i, "width", t.Width)
			continue
		}
		overlap := prevBottom - t.OffsetY
		if overlap < 0 {
			overlap = 0
		}
		if overlap >= t.Height {
			// Tile fully covered by the previous one.
			continue
		}

		destY := t.OffsetY + overlap
		rows := t.Height - overlap
		if destY >= height {
			break
		}
		if destY+rows > height {
			rows = height - destY
		}

		src := t.Image.Bounds()
		xdraw.Draw(out,
			image.Rect(0, destY, width, destY+rows),
			t.Image,
			image.Pt(src.Min.X, src.Min.Y+overlap),
			xdraw.Src)

		prevBottom = t.OffsetY + t.Height
	}

	return out, capped, nil
}

// scaleToWidth downscales img to maxWidth with CatmullRom resampling,
// preserving aspect ratio. Returns img unchanged when already narrow enough.
func scaleToWidth(img *image.RGBA, maxWidth int) *image.RGBA {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	ratio := float64(maxWidth) / float64(b.Dx())
	h := int(float64(b.Dy()) * ratio)
	if h < 1 {
		h = 1
	}
	scaled := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, xdraw.Src, nil)
	return scaled
}

// Encode writes img as JPEG at the given quality.
func Encode(w io.Writer, img image.Image, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = 75
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

// WriteComposite composes tiles, applies the size limits, and writes the
// JPEG to path. The returned StitchedImage reflects the on-disk pixels.
func WriteComposite(path string, tiles []models.ScreenshotTile, finalHeight int, opts Options) (*models.StitchedImage, error) {
	img, capped, err := Compose(tiles, finalHeight, opts.MaxHeight)
	if err != nil {
		return nil, err
	}
	if capped {
		slog.Warn("composite height capped",
			"path", path, "pageHeight", finalHeight, "cap", opts.MaxHeight)
	}

	img = scaleToWidth(img, opts.MaxWidth)

	f, err := os.Create(path)
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeFilesystem,
			"create composite file "+path, err)
	}
	defer f.Close()

	if err := Encode(f, img, opts.Quality); err != nil {
		return nil, models.NewCaptureError(models.ErrCodeStitch,
			"encode composite", err)
	}

	b := img.Bounds()
	return &models.StitchedImage{
		Path:   path,
		Width:  b.Dx(),
		Height: b.Dy(),
		Capped: capped,
	}, nil
}

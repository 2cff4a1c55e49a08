package stitch

import (
	"bytes"
	"image/png"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/pagesnap/models"
)

// CaptureTile screenshots the current viewport and tags it with the
// scroll offset at capture time. Tiles are captured as PNG so no
// generation loss accumulates before the final JPEG encode.
func CaptureTile(page *rod.Page, offsetY int) (models.ScreenshotTile, error) {
	raw, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return models.ScreenshotTile{}, models.NewCaptureError(models.ErrCodeStitch,
			"viewport screenshot", err)
	}

	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return models.ScreenshotTile{}, models.NewCaptureError(models.ErrCodeStitch,
			"decode viewport screenshot", err)
	}

	b := img.Bounds()
	return models.ScreenshotTile{
		OffsetY: offsetY,
		Width:   b.Dx(),
		Height:  b.Dy(),
		Image:   img,
	}, nil
}

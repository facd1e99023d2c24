// Package pdf paginates a tall report bitmap into an A4 document.
package pdf

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// A4 portrait size in points.
const (
	A4WidthPt  = 595.28
	A4HeightPt = 841.89
)

// Band is the part of the source bitmap shown on one page.
type Band struct {
	Index int
	// Y0 and Y1 delimit the source rows [Y0, Y1) printed on this page.
	Y0, Y1 int
	// Height is the page height in source pixels; rows past Y1 are padding.
	Height int
	// OffsetPt is where the top of the whole bitmap would sit relative to this
	// page when placing it uncropped.
	OffsetPt float64
}

// BandHeight returns how many source rows fit on one page once the bitmap is
// scaled to the page width.
func BandHeight(imgW int, pageWpt, pageHpt float64) int {
	if imgW <= 0 || pageWpt <= 0 || pageHpt <= 0 {
		return 0
	}
	return max(int(math.Round(pageHpt*float64(imgW)/pageWpt)), 1)
}

// Plan splits an imgW x imgH bitmap into page bands. Every source row belongs
// to exactly one band, in order, and there are ceil(imgH/bandHeight) bands.
func Plan(imgW, imgH int, pageWpt, pageHpt float64) []Band {
	bandPx := BandHeight(imgW, pageWpt, pageHpt)
	if bandPx == 0 || imgH <= 0 {
		return nil
	}
	pages := (imgH + bandPx - 1) / bandPx
	bands := make([]Band, 0, pages)
	for i := 0; i < pages; i++ {
		y0 := i * bandPx
		bands = append(bands, Band{
			Index:    i,
			Y0:       y0,
			Y1:       min(y0+bandPx, imgH),
			Height:   bandPx,
			OffsetPt: -float64(i) * pageHpt,
		})
	}
	return bands
}

// Slice crops img into one opaque page image per band. The last page is
// padded with white below the content.
func Slice(img image.Image, bands []Band) []*image.RGBA {
	b := img.Bounds()
	white := image.NewUniform(color.White)
	out := make([]*image.RGBA, 0, len(bands))
	for _, band := range bands {
		page := image.NewRGBA(image.Rect(0, 0, b.Dx(), band.Height))
		draw.Draw(page, page.Bounds(), white, image.Point{}, draw.Src)
		rows := image.Rect(0, 0, b.Dx(), band.Y1-band.Y0)
		draw.Draw(page, rows, img, image.Point{X: b.Min.X, Y: b.Min.Y + band.Y0}, draw.Src)
		out = append(out, page)
	}
	return out
}

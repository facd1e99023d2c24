package pdf

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Plan
// ============================================================================

func TestPlanThreePages(t *testing.T) {
	// page width equals image width so one page holds 1000 rows
	bands := Plan(500, 3000, 500, 1000)
	require.Len(t, bands, 3)
	assert.Equal(t, Band{Index: 0, Y0: 0, Y1: 1000, Height: 1000, OffsetPt: 0}, bands[0])
	assert.Equal(t, Band{Index: 1, Y0: 1000, Y1: 2000, Height: 1000, OffsetPt: -1000}, bands[1])
	assert.Equal(t, Band{Index: 2, Y0: 2000, Y1: 3000, Height: 1000, OffsetPt: -2000}, bands[2])
}

func TestPlanCoversEveryRowOnce(t *testing.T) {
	for _, h := range []int{1, 999, 1000, 1001, 2500, 7777} {
		bands := Plan(500, h, 500, 1000)
		require.NotEmpty(t, bands, h)
		assert.Equal(t, (h+999)/1000, len(bands), h)
		next := 0
		for _, b := range bands {
			assert.Equal(t, next, b.Y0, h)
			assert.Greater(t, b.Y1, b.Y0, h)
			assert.LessOrEqual(t, b.Y1-b.Y0, b.Height, h)
			next = b.Y1
		}
		assert.Equal(t, h, next, h)
	}
}

func TestPlanMatchesOffsetLoop(t *testing.T) {
	imgW, imgH := 1985, 6000
	bands := Plan(imgW, imgH, A4WidthPt, A4HeightPt)

	imgHeightPt := float64(imgH) * A4WidthPt / float64(imgW)
	var offsets []float64
	remaining := imgHeightPt
	offsets = append(offsets, 0)
	remaining -= A4HeightPt
	for remaining > 0 {
		offsets = append(offsets, remaining-imgHeightPt)
		remaining -= A4HeightPt
	}

	require.Len(t, bands, len(offsets))
	for i := range bands {
		assert.InDelta(t, offsets[i], bands[i].OffsetPt, 1e-6)
	}
}

func TestPlanDegenerateInput(t *testing.T) {
	assert.Nil(t, Plan(0, 100, A4WidthPt, A4HeightPt))
	assert.Nil(t, Plan(100, 0, A4WidthPt, A4HeightPt))
	assert.Nil(t, Plan(100, 100, 0, A4HeightPt))
}

// ============================================================================
// Slice
// ============================================================================

func stripes(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		c := color.RGBA{R: uint8(y % 251), G: 10, B: 20, A: 255}
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestSliceCopiesRowsAndPadsLastPage(t *testing.T) {
	img := stripes(10, 250)
	bands := Plan(10, 250, 10, 100)
	pages := Slice(img, bands)
	require.Len(t, pages, 3)

	for i, page := range pages {
		assert.Equal(t, image.Rect(0, 0, 10, 100), page.Bounds())
		for y := 0; y < bands[i].Y1-bands[i].Y0; y++ {
			assert.Equal(t, img.RGBAAt(3, bands[i].Y0+y), page.RGBAAt(3, y))
		}
	}
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, pages[2].RGBAAt(0, 60))
}

// ============================================================================
// Assemble
// ============================================================================

func countPages(data []byte) int {
	s := string(data)
	return strings.Count(s, "/Type /Page") - strings.Count(s, "/Type /Pages")
}

func TestAssembleSinglePage(t *testing.T) {
	img := stripes(400, 300)
	doc, err := NewAssembler("Resumail", "user@example.com").Assemble(context.Background(), img, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Pages)
	assert.True(t, bytes.HasPrefix(doc.Bytes, []byte("%PDF-")))
	assert.Equal(t, 1, countPages(doc.Bytes))
}

func TestAssembleMultiPage(t *testing.T) {
	// 400px wide: one A4 page holds round(841.89*400/595.28) = 566 rows
	img := stripes(400, 1200)
	doc, err := NewAssembler("", "").Assemble(context.Background(), img, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Pages)
	assert.Equal(t, 3, countPages(doc.Bytes))
}

func TestAssembleIsReproducible(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	img := stripes(300, 900)
	first, err := NewAssembler("Resumail", "").Assemble(context.Background(), img, created)
	require.NoError(t, err)
	second, err := NewAssembler("Resumail", "").Assemble(context.Background(), img, created)
	require.NoError(t, err)
	assert.Equal(t, first.Bytes, second.Bytes)
}

func TestAssembleRejectsEmptyImage(t *testing.T) {
	_, err := NewAssembler("", "").Assemble(context.Background(), image.NewRGBA(image.Rect(0, 0, 0, 0)), time.Time{})
	require.ErrorIs(t, err, ErrEmptyImage)
}

func TestAssembleHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAssembler("", "").Assemble(ctx, stripes(10, 10), time.Time{})
	require.ErrorIs(t, err, context.Canceled)
}

// ============================================================================
// Files
// ============================================================================

func TestFilename(t *testing.T) {
	at := time.Date(2025, 3, 7, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "Resumail_Report_2025-03-07.pdf", Filename(at))
}

func TestSaveWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path, err := Save(filepath.Join(dir, "nested"), "../Resumail_Report_2025-03-07.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nested", "Resumail_Report_2025-03-07.pdf"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveRequiresName(t *testing.T) {
	_, err := Save(t.TempDir(), " ", nil)
	require.Error(t, err)
}

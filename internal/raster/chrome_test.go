package raster

import (
	"context"
	"image/color"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumail/resumail/internal/render"
	"github.com/resumail/resumail/internal/report"
)

// ========================================
// Helpers
// ========================================

func chromeExecPath() string {
	if path := os.Getenv("CHROME_PATH"); path != "" {
		return path
	}
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

func newTestChrome(t *testing.T) *ChromeRasterizer {
	t.Helper()
	if testing.Short() {
		t.Skip("chrome capture skipped in short mode")
	}
	path := chromeExecPath()
	if path == "" {
		t.Skip("no chrome binary found; set CHROME_PATH")
	}
	c, err := NewChromeRasterizer(context.Background(), ChromeConfig{ExecPath: path, Timeout: 30 * time.Second})
	if err != nil {
		t.Skipf("chrome did not start: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func pageTargets(t *testing.T, c *ChromeRasterizer) int {
	t.Helper()
	infos, err := chromedp.Targets(c.browserCtx)
	require.NoError(t, err)
	n := 0
	for _, info := range infos {
		if info.Type == "page" {
			n++
		}
	}
	return n
}

func assertTabsReleased(t *testing.T, c *ChromeRasterizer, baseline int) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return pageTargets(t, c) == baseline
	}, 5*time.Second, 50*time.Millisecond)
}

// ========================================
// Capture
// ========================================

func TestChromeRasterizeMatchesPixelWidth(t *testing.T) {
	c := newTestChrome(t)
	doc, css := renderDoc(t, report.Payload{
		"report_text":    "Great quarter",
		"classification": map[string]any{"positive": 8, "neutral": 1, "negative": 1, "other": 0},
		"highlights":     []any{"fast shipping"},
	})

	opts := DefaultOptions()
	img, err := c.Rasterize(context.Background(), doc, css, opts)
	require.NoError(t, err)

	b := img.Bounds()
	assert.Equal(t, opts.PixelWidth(), b.Dx())
	assert.Positive(t, b.Dy())
	assert.LessOrEqual(t, b.Dy(), opts.MaxHeightPx())

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	for _, p := range [][2]int{{b.Min.X, b.Min.Y}, {b.Max.X - 1, b.Min.Y}, {b.Min.X, b.Max.Y - 1}, {b.Max.X - 1, b.Max.Y - 1}} {
		assert.Equal(t, white, img.RGBAAt(p[0], p[1]), "corner %v", p)
	}
}

func TestChromeRasterizeRejectsEmptyDocument(t *testing.T) {
	c := newTestChrome(t)
	_, err := c.Rasterize(context.Background(), render.Document{}, render.Stylesheet{}, DefaultOptions())
	require.ErrorIs(t, err, ErrEmptyDocument)
}

// ========================================
// Tab lifecycle
// ========================================

func TestChromeRasterizeClosesTabOnError(t *testing.T) {
	c := newTestChrome(t)
	baseline := pageTargets(t, c)

	doc, css := renderDoc(t, report.Payload{"report_text": strings.Repeat("line\n", 400)})
	opts := DefaultOptions()
	opts.MaxPages = 1
	img, err := c.Rasterize(context.Background(), doc, css, opts)
	require.ErrorIs(t, err, ErrDocumentTooLarge)
	assert.Nil(t, img)

	assertTabsReleased(t, c, baseline)
}

func TestChromeRasterizeClosesTabOnCancellation(t *testing.T) {
	c := newTestChrome(t)
	baseline := pageTargets(t, c)
	doc, css := renderDoc(t, report.Payload{"report_text": "cancel me"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Rasterize(ctx, doc, css, DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
	assertTabsReleased(t, c, baseline)

	// cancelled while the capture is in flight
	ctx, cancel = context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	defer cancel()
	_, _ = c.Rasterize(ctx, doc, css, DefaultOptions())
	assertTabsReleased(t, c, baseline)
}

func TestChromeRasterizeAfterClose(t *testing.T) {
	c := newTestChrome(t)
	c.Close()
	doc, css := renderDoc(t, nil)
	_, err := c.Rasterize(context.Background(), doc, css, DefaultOptions())
	require.ErrorIs(t, err, ErrBrowserClosed)
}

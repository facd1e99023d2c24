package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/resumail/resumail/internal/render"
)

// ErrBrowserClosed is returned after Close.
var ErrBrowserClosed = errors.New("raster: browser closed")

// ChromeConfig configures the headless browser.
type ChromeConfig struct {
	// WSURL points at a running browser's DevTools endpoint. When empty a
	// local browser is started.
	WSURL    string
	ExecPath string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// ChromeRasterizer captures documents in a headless Chrome. One browser is
// shared; every capture runs in its own tab.
type ChromeRasterizer struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	timeout       time.Duration
	logger        *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewChromeRasterizer starts (or connects to) the browser.
func NewChromeRasterizer(ctx context.Context, cfg ChromeConfig) (*ChromeRasterizer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.WSURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.WSURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-extensions", true),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("headless", true),
			chromedp.WSURLReadTimeout(60*time.Second),
		)
		execPath := cfg.ExecPath
		if execPath == "" {
			execPath = os.Getenv("CHROME_PATH")
		}
		if execPath != "" {
			opts = append(opts, chromedp.ExecPath(execPath))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Warn("chrome", slog.String("detail", fmt.Sprintf(format, args...)))
		}),
	)

	startCtx, cancelStart := context.WithTimeout(ctx, timeout)
	defer cancelStart()
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("raster: start browser: %w", err)
		}
	case <-startCtx.Done():
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("raster: start browser: %w", startCtx.Err())
	}

	logger.Info("chrome rasterizer ready", slog.Bool("remote", cfg.WSURL != ""))
	return &ChromeRasterizer{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		timeout:       timeout,
		logger:        logger,
	}, nil
}

// Close shuts the browser down.
func (c *ChromeRasterizer) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.browserCancel()
	c.allocCancel()
}

// Rasterize loads the document markup in a new tab and captures the page.
// The tab is closed before returning on every path.
func (c *ChromeRasterizer) Rasterize(ctx context.Context, doc render.Document, css render.Stylesheet, opts Options) (*image.RGBA, error) {
	if doc.Empty() {
		return nil, ErrEmptyDocument
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrBrowserClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts = opts.normalize()
	markup, err := doc.HTML(css, opts.WidthPx)
	if err != nil {
		return nil, err
	}

	tabCtx, closeTab := chromedp.NewContext(c.browserCtx)
	defer closeTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	var (
		fontsReady bool
		height     float64
		shot       []byte
	)
	err = chromedp.Run(tabCtx,
		emulation.SetDeviceMetricsOverride(int64(opts.WidthPx), 600, opts.Scale, false),
		emulation.SetDefaultBackgroundColorOverride().WithColor(&cdp.RGBA{R: 255, G: 255, B: 255, A: 1}),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, markup).Do(ctx)
		}),
		chromedp.WaitReady(render.ContentSelector, chromedp.ByQuery),
		chromedp.Evaluate(`document.fonts.ready.then(() => true)`, &fontsReady, awaitPromise),
		chromedp.Evaluate(`document.querySelector('`+render.ContentSelector+`').getBoundingClientRect().height`, &height),
		chromedp.ActionFunc(func(context.Context) error {
			if height <= 0 {
				return ErrEmptyDocument
			}
			return opts.checkHeight(int(math.Ceil(height * opts.Scale)))
		}),
		chromedp.FullScreenshot(&shot, 100),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ErrEmptyDocument) || errors.Is(err, ErrDocumentTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("raster: capture: %w", err)
	}

	decoded, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("raster: decode capture: %w", err)
	}
	img := flatten(decoded)
	if img.Bounds().Dy() == 0 {
		return nil, ErrEmptyDocument
	}
	c.logger.Debug("chrome capture",
		slog.Int("width", img.Bounds().Dx()),
		slog.Int("height", img.Bounds().Dy()),
		slog.Float64("css_height", height),
	)
	return img, nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

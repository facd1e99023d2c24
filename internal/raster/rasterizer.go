// Package raster turns rendered report documents into a single tall bitmap.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"github.com/resumail/resumail/internal/render"
)

const (
	// DefaultScale supersamples the capture for print quality.
	DefaultScale = 2.5
	// MinScale is the lowest scale accepted.
	MinScale = 2.0
	// DefaultMaxPages bounds the capture height in A4 pages.
	DefaultMaxPages = 10

	// a4Aspect is the A4 height over width.
	a4Aspect = 841.89 / 595.28
)

// Engine names accepted by New.
const (
	EngineChrome = "chrome"
	EngineLayout = "layout"
)

var (
	// ErrEmptyDocument is returned when the document lays out to zero height.
	ErrEmptyDocument = errors.New("raster: document has no content")
	// ErrUnknownEngine is returned by New for unsupported engines.
	ErrUnknownEngine = errors.New("raster: unknown engine")
	// ErrDocumentTooLarge is returned before allocating a bitmap taller than
	// Options.MaxHeightPx.
	ErrDocumentTooLarge = errors.New("raster: document exceeds the page limit")
)

// Options controls the capture geometry.
type Options struct {
	WidthPx  int
	Scale    float64
	MaxPages int
}

// DefaultOptions returns an A4-wide capture at the default scale.
func DefaultOptions() Options {
	return Options{WidthPx: render.DefaultWidthPx, Scale: DefaultScale, MaxPages: DefaultMaxPages}
}

func (o Options) normalize() Options {
	if o.WidthPx <= 0 {
		o.WidthPx = render.DefaultWidthPx
	}
	if o.Scale <= 0 {
		o.Scale = DefaultScale
	}
	if o.Scale < MinScale {
		o.Scale = MinScale
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	return o
}

// PixelWidth is the output bitmap width.
func (o Options) PixelWidth() int {
	o = o.normalize()
	return int(float64(o.WidthPx)*o.Scale + 0.5)
}

// MaxHeightPx is the tallest bitmap a capture may produce: MaxPages A4 pages
// at PixelWidth.
func (o Options) MaxHeightPx() int {
	o = o.normalize()
	page := int(math.Round(a4Aspect * float64(o.PixelWidth())))
	return o.MaxPages * page
}

func (o Options) checkHeight(heightPx int) error {
	if limit := o.MaxHeightPx(); heightPx > limit {
		return fmt.Errorf("%w: %d px tall, limit %d px (%d pages)", ErrDocumentTooLarge, heightPx, limit, o.normalize().MaxPages)
	}
	return nil
}

// Rasterizer captures a document at a fixed width. The result is opaque and
// its height is the natural content height at the requested scale.
type Rasterizer interface {
	Rasterize(ctx context.Context, doc render.Document, css render.Stylesheet, opts Options) (*image.RGBA, error)
}

// Config selects and configures an engine.
type Config struct {
	Engine   string
	WSURL    string
	ExecPath string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// New builds the configured engine. The returned close function releases any
// browser process and is always safe to call.
func New(ctx context.Context, cfg Config) (Rasterizer, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Engine)) {
	case "", EngineLayout:
		return NewLayoutRasterizer(), func() {}, nil
	case EngineChrome:
		chrome, err := NewChromeRasterizer(ctx, ChromeConfig{
			WSURL:    cfg.WSURL,
			ExecPath: cfg.ExecPath,
			Timeout:  cfg.Timeout,
			Logger:   cfg.Logger,
		})
		if err != nil {
			return nil, func() {}, err
		}
		return chrome, chrome.Close, nil
	default:
		return nil, func() {}, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
	}
}

// flatten copies src onto an opaque white RGBA canvas.
func flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

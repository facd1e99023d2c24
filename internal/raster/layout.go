package raster

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/resumail/resumail/internal/render"
)

// Geometry mirrors the report stylesheet, in CSS pixels.
const (
	pagePadding    = 40.0
	sectionPadding = 16.0
	sectionGap     = 22.0
	headingSize    = 16.0
	headingGap     = 10.0
	bodySize       = 14.0
	smallSize      = 12.0
	lineFactor     = 1.5
)

var (
	colorTitle    = hexColor("#3730a3")
	colorHeading  = hexColor("#4338ca")
	colorAccent   = hexColor("#6366f1")
	colorAccentLt = hexColor("#818cf8")
	colorText     = hexColor("#334155")
	colorInk      = hexColor("#0f172a")
	colorMuted    = hexColor("#94a3b8")
	colorSubtle   = hexColor("#64748b")
	colorLabel    = hexColor("#475569")
	colorRule     = hexColor("#e0e7ff")
	colorBorder   = hexColor("#e2e8f0")
	colorEmptyBar = hexColor("#e2e8f0")
	colorWhite    = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

	sectionBackgrounds = map[string]color.RGBA{
		"summary":    hexColor("#f5f3ff"),
		"stats":      hexColor("#eef2ff"),
		"highlights": colorWhite,
		"subreports": hexColor("#f9fafb"),
	}

	statColors = map[string]color.RGBA{
		"positive": hexColor("#16a34a"),
		"neutral":  hexColor("#475569"),
		"negative": hexColor("#dc2626"),
		"other":    colorInk,
	}
)

var (
	regularFont = sync.OnceValues(func() (*opentype.Font, error) { return opentype.Parse(goregular.TTF) })
	boldFont    = sync.OnceValues(func() (*opentype.Font, error) { return opentype.Parse(gobold.TTF) })
)

// LayoutRasterizer paints documents without a browser, using the Go fonts and
// the same box geometry as the report stylesheet.
type LayoutRasterizer struct{}

// NewLayoutRasterizer constructs a LayoutRasterizer.
func NewLayoutRasterizer() *LayoutRasterizer {
	return &LayoutRasterizer{}
}

// Rasterize lays the document out on a fresh canvas.
func (r *LayoutRasterizer) Rasterize(ctx context.Context, doc render.Document, _ render.Stylesheet, opts Options) (*image.RGBA, error) {
	if doc.Empty() {
		return nil, ErrEmptyDocument
	}
	opts = opts.normalize()
	l, err := newLayout(opts)
	if err != nil {
		return nil, err
	}
	defer l.close()

	steps := []func(render.Document){
		l.header,
		l.summary,
		l.stats,
		l.highlights,
		l.subReports,
		l.footer,
	}
	l.y = l.px(pagePadding)
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step(doc)
	}
	l.y += l.px(pagePadding)
	if l.err != nil {
		return nil, fmt.Errorf("raster: build font face: %w", l.err)
	}

	height := int(math.Ceil(l.y))
	if height <= 0 || l.width <= 0 {
		return nil, ErrEmptyDocument
	}
	if err := opts.checkHeight(height); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.paint(height), nil
}

type faceKey struct {
	size float64
	bold bool
}

type op struct {
	rect  image.Rectangle
	fill  color.RGBA
	text  string
	face  font.Face
	dot   fixed.Point26_6
	isTxt bool
}

type layout struct {
	scale float64
	width int
	limit float64
	y     float64
	ops   []op
	faces map[faceKey]font.Face
	err   error
}

func newLayout(opts Options) (*layout, error) {
	if _, err := regularFont(); err != nil {
		return nil, fmt.Errorf("raster: parse regular font: %w", err)
	}
	if _, err := boldFont(); err != nil {
		return nil, fmt.Errorf("raster: parse bold font: %w", err)
	}
	return &layout{
		scale: opts.Scale,
		width: opts.PixelWidth(),
		limit: float64(opts.MaxHeightPx()),
		faces: make(map[faceKey]font.Face),
	}, nil
}

func (l *layout) close() {
	for _, f := range l.faces {
		if f != nil {
			_ = f.Close()
		}
	}
	l.faces = nil
}

func (l *layout) px(css float64) float64 {
	return css * l.scale
}

func (l *layout) face(size float64, bold bool) font.Face {
	key := faceKey{size: size, bold: bold}
	if f, ok := l.faces[key]; ok {
		return f
	}
	src, _ := regularFont()
	if bold {
		src, _ = boldFont()
	}
	f, err := opentype.NewFace(src, &opentype.FaceOptions{Size: l.px(size), DPI: 72, Hinting: font.HintingNone})
	if err != nil {
		l.err = err
		f = nil
	}
	l.faces[key] = f
	return f
}

func (l *layout) contentLeft() float64  { return l.px(pagePadding) }
func (l *layout) contentRight() float64 { return float64(l.width) - l.px(pagePadding) }

func (l *layout) fill(x0, y0, x1, y1 float64, c color.RGBA) {
	r := image.Rect(int(math.Round(x0)), int(math.Round(y0)), int(math.Round(x1)), int(math.Round(y1)))
	if r.Empty() {
		return
	}
	l.ops = append(l.ops, op{rect: r, fill: c})
}

// textBlock wraps text to maxW and emits one line per row. It returns the
// height consumed.
func (l *layout) textBlock(lines []string, x, maxW float64, size float64, bold bool, c color.RGBA, align string) float64 {
	f := l.face(size, bold)
	lineH := l.px(size * lineFactor)
	start := l.y
	for _, line := range lines {
		if l.y > l.limit {
			// already too tall to paint; Rasterize reports it
			break
		}
		rows := l.wrap(f, line, maxW)
		if len(rows) == 0 {
			rows = []string{""}
		}
		for _, row := range rows {
			l.textAt(f, row, x, maxW, lineH, c, align)
			l.y += lineH
		}
	}
	return l.y - start
}

func (l *layout) textAt(f font.Face, s string, x, maxW, lineH float64, c color.RGBA, align string) {
	if s == "" || f == nil {
		return
	}
	m := f.Metrics()
	ascent := float64(m.Ascent) / 64
	descent := float64(m.Descent) / 64
	baseline := l.y + (lineH-(ascent+descent))/2 + ascent
	if align == "center" {
		w := float64(font.MeasureString(f, s)) / 64
		x += (maxW - w) / 2
	}
	l.ops = append(l.ops, op{
		isTxt: true,
		text:  s,
		face:  f,
		fill:  c,
		dot:   fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(baseline * 64)},
	})
}

func (l *layout) wrap(f font.Face, text string, maxW float64) []string {
	if f == nil {
		return []string{text}
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	measure := func(s string) float64 { return float64(font.MeasureString(f, s)) / 64 }
	var rows []string
	current := ""
	for _, word := range words {
		for measure(word) > maxW && len([]rune(word)) > 1 {
			head, tail := splitToFit(word, maxW, measure)
			if current != "" {
				rows = append(rows, current)
				current = ""
			}
			rows = append(rows, head)
			word = tail
		}
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if measure(candidate) <= maxW || current == "" {
			current = candidate
			continue
		}
		rows = append(rows, current)
		current = word
	}
	if current != "" {
		rows = append(rows, current)
	}
	return rows
}

func splitToFit(word string, maxW float64, measure func(string) float64) (string, string) {
	runes := []rune(word)
	n := 1
	for n < len(runes) && measure(string(runes[:n+1])) <= maxW {
		n++
	}
	return string(runes[:n]), string(runes[n:])
}

func (l *layout) header(doc render.Document) {
	left, right := l.contentLeft(), l.contentRight()
	l.textBlock([]string{doc.Header.Title}, left, right-left, 22, true, colorTitle, "center")
	l.y += l.px(6)
	l.textBlock([]string{doc.Header.Viewer + " — " + doc.Header.Generated}, left, right-left, smallSize, false, colorSubtle, "center")
	l.y += l.px(8)
	l.fill(left, l.y, right, l.y+l.px(2), colorRule)
	l.y += l.px(2) + l.px(20)
}

// section draws the background after the body has been laid out so the box
// fits its content.
func (l *layout) section(kind, heading string, body func(left, width float64)) {
	left, right := l.contentLeft(), l.contentRight()
	top := l.y
	bgIndex := len(l.ops)
	pad := l.px(sectionPadding)
	if kind == "highlights" {
		pad = 0
	}
	l.y += pad

	innerLeft := left + pad
	innerWidth := right - left - 2*pad
	l.fill(innerLeft, l.y, innerLeft+l.px(4), l.y+l.px(headingSize*1.25), colorAccent)
	l.textBlockHeading(heading, innerLeft+l.px(12), innerWidth-l.px(12))
	l.y += l.px(headingGap)

	body(innerLeft, innerWidth)

	l.y += pad
	bg := op{rect: image.Rect(int(math.Round(left)), int(math.Round(top)), int(math.Round(right)), int(math.Round(l.y))), fill: sectionBackgrounds[kind]}
	l.ops = append(l.ops[:bgIndex], append([]op{bg}, l.ops[bgIndex:]...)...)
	l.y += l.px(sectionGap)
}

func (l *layout) textBlockHeading(text string, x, maxW float64) {
	f := l.face(headingSize, true)
	lineH := l.px(headingSize * 1.25)
	rows := l.wrap(f, text, maxW)
	if len(rows) == 0 {
		rows = []string{""}
	}
	for _, row := range rows {
		l.textAt(f, row, x, maxW, lineH, colorHeading, "left")
		l.y += lineH
	}
}

func (l *layout) summary(doc render.Document) {
	l.section("summary", doc.Summary.Heading, func(left, width float64) {
		if len(doc.Summary.Lines) == 0 {
			l.textBlock([]string{doc.Summary.Placeholder}, left, width, bodySize, false, colorMuted, "left")
			return
		}
		l.textBlock(doc.Summary.Lines, left, width, bodySize, false, colorText, "left")
	})
}

func (l *layout) stats(doc render.Document) {
	l.section("stats", doc.Stats.Heading, func(left, width float64) {
		l.y += l.px(10)
		n := len(doc.Stats.Items)
		if n > 0 {
			colW := width / float64(n)
			top := l.y
			bottom := top
			for i, item := range doc.Stats.Items {
				l.y = top
				x := left + float64(i)*colW
				c, ok := statColors[item.Key]
				if !ok {
					c = colorInk
				}
				l.textBlock([]string{item.Display}, x, colW, 18, true, c, "center")
				l.textBlock([]string{item.Label}, x, colW, smallSize, false, colorLabel, "center")
				bottom = math.Max(bottom, l.y)
			}
			l.y = bottom
		}
		l.y += l.px(10)
		total := doc.Stats.TotalLabel + " : " + doc.Stats.TotalDisplay
		l.textBlock([]string{total}, left, width, bodySize, false, colorText, "left")
		if len(doc.Stats.Chart.Segments) > 0 {
			l.y += l.px(10)
			l.chart(doc.Stats.Chart, left, width)
		}
	})
}

func (l *layout) chart(c render.Chart, left, width float64) {
	barTop := l.y + l.px(4)
	barBottom := barTop + l.px(14)
	if !c.HasData() {
		l.fill(left, barTop, left+width, barBottom, colorEmptyBar)
	} else {
		x := left
		for _, seg := range c.Segments {
			if seg.Value == 0 {
				continue
			}
			w := seg.Fraction * width
			l.fill(x, barTop, x+w, barBottom, hexColor(seg.Color))
			x += w
		}
	}
	l.y += l.px(render.ChartHeight)
}

func (l *layout) highlights(doc render.Document) {
	l.section("highlights", doc.Highlights.Heading, func(left, width float64) {
		if len(doc.Highlights.Items) == 0 {
			l.textBlock([]string{doc.Highlights.Placeholder}, left, width, bodySize, false, colorMuted, "left")
			return
		}
		for _, item := range doc.Highlights.Items {
			top := l.y
			l.y += l.px(8)
			textLeft := left + l.px(4) + l.px(12)
			textWidth := width - l.px(4) - l.px(24)
			l.textBlock([]string{item.Text}, textLeft, textWidth, bodySize, false, colorInk, "left")
			if item.Meta != "" {
				l.textBlock([]string{item.Meta}, textLeft, textWidth, smallSize, false, colorMuted, "left")
			}
			l.y += l.px(8)
			l.fill(left, top, left+l.px(4), l.y, colorAccent)
			l.y += l.px(6)
		}
	})
}

func (l *layout) subReports(doc render.Document) {
	l.section("subreports", doc.SubReports.Heading, func(left, width float64) {
		if len(doc.SubReports.Items) == 0 {
			l.textBlock([]string{doc.SubReports.Placeholder}, left, width, bodySize, false, colorMuted, "left")
			return
		}
		for _, block := range doc.SubReports.Items {
			top := l.y
			bgIndex := len(l.ops)
			pad := l.px(12)
			l.y += pad
			innerLeft := left + l.px(4) + pad
			innerWidth := width - l.px(4) - 2*pad
			l.textBlock([]string{block.Title}, innerLeft, innerWidth, bodySize, true, colorTitle, "left")
			l.y += l.px(6)
			if len(block.Lines) == 0 {
				l.textBlock([]string{block.Placeholder}, innerLeft, innerWidth, 13, false, colorMuted, "left")
			} else {
				l.textBlock(block.Lines, innerLeft, innerWidth, 13, false, colorText, "left")
			}
			l.y += pad
			border := []op{
				{rect: l.rect(left, top, left+width, l.y), fill: colorBorder},
				{rect: l.rect(left+l.px(1), top+l.px(1), left+width-l.px(1), l.y-l.px(1)), fill: colorWhite},
				{rect: l.rect(left, top, left+l.px(4), l.y), fill: colorAccentLt},
			}
			l.ops = append(l.ops[:bgIndex], append(border, l.ops[bgIndex:]...)...)
			l.y += l.px(10)
		}
	})
}

func (l *layout) footer(doc render.Document) {
	left, right := l.contentLeft(), l.contentRight()
	// section margins collapse into the footer margin
	l.y += l.px(24 - sectionGap)
	l.textBlock([]string{doc.Footer.Text + " " + doc.Footer.Brand}, left, right-left, smallSize, false, colorMuted, "center")
	l.y += l.px(2)
	l.textBlock([]string{doc.Footer.Generated}, left, right-left, smallSize, false, colorMuted, "center")
}

func (l *layout) rect(x0, y0, x1, y1 float64) image.Rectangle {
	return image.Rect(int(math.Round(x0)), int(math.Round(y0)), int(math.Round(x1)), int(math.Round(y1)))
}

func (l *layout) paint(height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, l.width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorWhite), image.Point{}, draw.Src)
	for _, o := range l.ops {
		if o.isTxt {
			d := font.Drawer{Dst: img, Src: image.NewUniform(o.fill), Face: o.face, Dot: o.dot}
			d.DrawString(o.text)
			continue
		}
		draw.Draw(img, o.rect.Intersect(img.Bounds()), image.NewUniform(o.fill), image.Point{}, draw.Src)
	}
	return img
}

func hexColor(s string) color.RGBA {
	s = strings.TrimPrefix(s, "#")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil || len(s) != 6 {
		return colorInkFallback
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

var colorInkFallback = color.RGBA{R: 0x0f, G: 0x17, B: 0x2a, A: 0xff}

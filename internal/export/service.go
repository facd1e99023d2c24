// Package export runs the report-to-PDF pipeline and owns its failure
// handling.
package export

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/resumail/resumail/internal/pdf"
	"github.com/resumail/resumail/internal/raster"
	"github.com/resumail/resumail/internal/render"
	"github.com/resumail/resumail/internal/report"
)

// Assembler turns a tall bitmap into a paginated PDF.
type Assembler interface {
	Assemble(ctx context.Context, img image.Image, createdAt time.Time) (pdf.Document, error)
}

// Config wires the pipeline stages.
type Config struct {
	Rasterizer raster.Rasterizer
	Assembler  Assembler
	Guard      Guard
	Metrics    *Metrics
	Logger     *slog.Logger
	Locale     string
	Location   *time.Location
	Options    raster.Options
}

// Request is one export.
type Request struct {
	Payload report.Payload
	Viewer  string
	Locale  string
}

// Artifact is a generated PDF.
type Artifact struct {
	Filename    string
	Data        []byte
	Pages       int
	Digest      string
	GeneratedAt time.Time
	Report      report.CanonicalReport
}

// Service runs exports. It is safe for concurrent use; concurrent exports for
// the same viewer are refused with ErrBusy.
type Service struct {
	rasterizer raster.Rasterizer
	assembler  Assembler
	guard      Guard
	metrics    *Metrics
	logger     *slog.Logger
	locale     string
	location   *time.Location
	options    raster.Options
	now        func() time.Time
}

// NewService constructs a Service. Missing collaborators fall back to the
// layout rasterizer, the A4 assembler and an in-memory guard.
func NewService(cfg Config) *Service {
	s := &Service{
		rasterizer: cfg.Rasterizer,
		assembler:  cfg.Assembler,
		guard:      cfg.Guard,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		locale:     cfg.Locale,
		location:   cfg.Location,
		options:    cfg.Options,
		now:        time.Now,
	}
	if s.rasterizer == nil {
		s.rasterizer = raster.NewLayoutRasterizer()
	}
	if s.assembler == nil {
		s.assembler = pdf.NewAssembler(render.Brand, "")
	}
	if s.guard == nil {
		s.guard = NewMemoryGuard()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.options == (raster.Options{}) {
		s.options = raster.DefaultOptions()
	}
	return s
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) renderer(locale string) *render.Renderer {
	if locale == "" {
		locale = s.locale
	}
	return render.NewRenderer(locale).WithLocation(s.location)
}

// Render normalizes and renders a request without capturing it.
func (s *Service) Render(req Request) (render.Document, render.Stylesheet, report.CanonicalReport) {
	rep := report.Normalize(req.Payload)
	doc, css := s.renderer(req.Locale).Render(rep, req.Viewer, s.now())
	return doc, css, rep
}

// Preview returns the HTML markup the browser engine would capture.
func (s *Service) Preview(req Request) (string, error) {
	doc, css, _ := s.Render(req)
	markup, err := doc.HTML(css, s.options.WidthPx)
	if err != nil {
		return "", &Error{Stage: StageRender, Err: err}
	}
	return markup, nil
}

// Export runs the whole pipeline. Every failure, including panics inside a
// stage, is returned as *Error after being logged; the caller only needs to
// show Notice.
func (s *Service) Export(ctx context.Context, req Request) (Artifact, error) {
	art, _, err := s.run(ctx, req, false, "")
	return art, err
}

// ExportToFile exports and saves the PDF under dir. Nothing is written when
// any stage fails.
func (s *Service) ExportToFile(ctx context.Context, req Request, dir string) (Artifact, string, error) {
	return s.run(ctx, req, true, dir)
}

func (s *Service) run(ctx context.Context, req Request, save bool, dir string) (art Artifact, path string, err error) {
	release, err := s.guard.Acquire(ctx, guardKey(req.Viewer))
	if err != nil {
		if !errors.Is(err, ErrBusy) {
			err = &Error{Stage: StageGuard, Err: fmt.Errorf("acquire guard: %w", err)}
			s.logger.Error("report export guard", slog.String("viewer", req.Viewer), slog.Any("error", err))
		}
		s.metrics.Track().End(0, err)
		return Artifact{}, "", err
	}
	defer release()

	tracker := s.metrics.Track()
	started := time.Now()
	stage := StageRender
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
			art, path = Artifact{}, ""
		}
		tracker.End(art.Pages, err)
		if err != nil {
			s.logger.Error("report export failed",
				slog.String("stage", string(StageOf(err))),
				slog.String("viewer", req.Viewer),
				slog.Duration("elapsed", time.Since(started)),
				slog.Any("error", err),
			)
			return
		}
		s.logger.Info("report exported",
			slog.String("viewer", req.Viewer),
			slog.String("file", art.Filename),
			slog.Int("pages", art.Pages),
			slog.Duration("elapsed", time.Since(started)),
		)
	}()

	generatedAt := s.now()
	rep := report.Normalize(req.Payload)
	doc, css := s.renderer(req.Locale).Render(rep, req.Viewer, generatedAt)

	stage = StageCapture
	img, err := s.rasterizer.Rasterize(ctx, doc, css, s.options)
	if err != nil {
		return Artifact{}, "", &Error{Stage: StageCapture, Err: err}
	}

	stage = StageAssembly
	out, err := s.assembler.Assemble(ctx, img, generatedAt)
	if err != nil {
		return Artifact{}, "", &Error{Stage: StageAssembly, Err: err}
	}

	sum := blake2b.Sum256(out.Bytes)
	art = Artifact{
		Filename:    pdf.Filename(generatedAt.In(s.location)),
		Data:        out.Bytes,
		Pages:       out.Pages,
		Digest:      hex.EncodeToString(sum[:]),
		GeneratedAt: generatedAt,
		Report:      rep,
	}
	if !save {
		return art, "", nil
	}

	stage = StageSave
	path, err = pdf.Save(dir, art.Filename, art.Data)
	if err != nil {
		return Artifact{}, "", &Error{Stage: StageSave, Err: fmt.Errorf("dir %s: %w", dir, err)}
	}
	return art, path, nil
}

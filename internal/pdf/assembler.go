package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"
)

// ErrEmptyImage is returned when there is nothing to paginate.
var ErrEmptyImage = errors.New("pdf: empty image")

// Document is an assembled PDF.
type Document struct {
	Bytes []byte
	Pages int
}

// Assembler writes page bands into an A4 portrait PDF.
type Assembler struct {
	title  string
	author string
}

// NewAssembler constructs an Assembler. Title and author end up in the PDF
// metadata.
func NewAssembler(title, author string) *Assembler {
	return &Assembler{title: title, author: author}
}

// Assemble paginates img and returns the PDF bytes. The output only depends on
// img and createdAt; a zero createdAt means now.
func (a *Assembler) Assemble(ctx context.Context, img image.Image, createdAt time.Time) (Document, error) {
	if img == nil || img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		return Document{}, ErrEmptyImage
	}

	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	doc.SetCatalogSort(true)
	doc.SetCreationDate(createdAt)
	doc.SetModificationDate(createdAt)
	doc.SetCreator("Resumail", true)
	if a.title != "" {
		doc.SetTitle(a.title, true)
	}
	if a.author != "" {
		doc.SetAuthor(a.author, true)
	}
	pageW, pageH := doc.GetPageSize()

	bands := Plan(img.Bounds().Dx(), img.Bounds().Dy(), pageW, pageH)
	pages := Slice(img, bands)
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	opt := fpdf.ImageOptions{ImageType: "PNG"}
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return Document{}, err
		}
		var buf bytes.Buffer
		if err := encoder.Encode(&buf, page); err != nil {
			return Document{}, fmt.Errorf("pdf: encode page %d: %w", i+1, err)
		}
		name := "page-" + strconv.Itoa(i+1)
		doc.AddPage()
		doc.RegisterImageOptionsReader(name, opt, &buf)
		doc.ImageOptions(name, 0, 0, pageW, pageH, false, opt, 0, "")
		if err := doc.Error(); err != nil {
			return Document{}, fmt.Errorf("pdf: place page %d: %w", i+1, err)
		}
	}

	var out bytes.Buffer
	if err := doc.Output(&out); err != nil {
		return Document{}, fmt.Errorf("pdf: write: %w", err)
	}
	return Document{Bytes: out.Bytes(), Pages: len(pages)}, nil
}

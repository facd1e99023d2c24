package render

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/message"

	"github.com/resumail/resumail/internal/report"
)

// Brand is printed in the footer.
const Brand = "Resumail"

// Renderer builds documents for one locale.
type Renderer struct {
	labels  Labels
	printer *message.Printer
	loc     *time.Location
}

// NewRenderer constructs a renderer for the given locale. Unknown locales fall
// back to French.
func NewRenderer(locale string) *Renderer {
	return &Renderer{labels: LabelsFor(locale), printer: printerFor(matchLanguage(locale)), loc: time.UTC}
}

// WithLocation sets the time zone used for the generation timestamp.
func (r *Renderer) WithLocation(loc *time.Location) *Renderer {
	if loc != nil {
		r.loc = loc
	}
	return r
}

// Labels exposes the resolved labels.
func (r *Renderer) Labels() Labels {
	return r.labels
}

// Render maps a canonical report to a document. Equal inputs give equal output.
func (r *Renderer) Render(rep report.CanonicalReport, viewer string, generatedAt time.Time) (Document, Stylesheet) {
	l := r.labels
	viewer = strings.TrimSpace(viewer)
	if viewer == "" {
		viewer = l.Anonymous
	}
	generated := generatedAt.In(r.loc).Format(l.DateLayout)

	stats := []Stat{
		{Key: "positive", Label: l.Positive, Value: rep.Classification.Positive},
		{Key: "neutral", Label: l.Neutral, Value: rep.Classification.Neutral},
		{Key: "negative", Label: l.Negative, Value: rep.Classification.Negative},
		{Key: "other", Label: l.Other, Value: rep.Classification.Other},
	}
	for i := range stats {
		stats[i].Display = r.printer.Sprintf("%d", stats[i].Value)
	}

	doc := Document{
		Lang:   l.Lang,
		Header: Header{Title: l.Title, Viewer: viewer, Generated: generated},
		Summary: Summary{
			Heading: l.Summary,
			Lines:   SplitLines(rep.SummaryText),
		},
		Stats: Stats{
			Heading:    l.Stats,
			Items:      stats,
			TotalLabel:   l.Total,
			Total:        rep.TotalEmails,
			TotalDisplay: r.printer.Sprintf("%d", rep.TotalEmails),
			Chart:        newChart(l.ChartTitle, l.ChartNoData, stats),
		},
		Highlights: Highlights{Heading: l.Highlights},
		SubReports: SubReports{Heading: l.SubReports},
		Footer:     Footer{Text: l.Footer, Brand: Brand, Generated: generated},
	}
	if len(doc.Summary.Lines) == 0 {
		doc.Summary.Placeholder = l.NoSummary
	}

	for _, h := range rep.Highlights {
		doc.Highlights.Items = append(doc.Highlights.Items, HighlightItem{Text: h.Text, Meta: highlightMeta(h)})
	}
	if len(doc.Highlights.Items) == 0 {
		doc.Highlights.Placeholder = l.NoHighlights
	}

	for _, sub := range rep.SubReports {
		block := SubReportBlock{Title: sub.Title, Lines: SplitLines(sub.Text)}
		if len(block.Lines) == 0 {
			block.Placeholder = l.NoContent
		}
		doc.SubReports.Items = append(doc.SubReports.Items, block)
	}
	if len(doc.SubReports.Items) == 0 {
		doc.SubReports.Placeholder = l.NoSubReports
	}

	return doc, DefaultStylesheet()
}

// SplitLines splits free text on line breaks. Blank text yields no lines;
// blank lines inside the text are kept.
func SplitLines(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

func highlightMeta(h report.Highlight) string {
	var parts []string
	if h.Count != nil && *h.Count > 0 {
		parts = append(parts, fmt.Sprintf("%d×", *h.Count))
	}
	if h.Pct != "" {
		parts = append(parts, h.Pct)
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " — ") + ")"
}

// Package render turns a canonical report into a typed, display-ready document
// and the markup used to rasterize it.
package render

// Document is the rendered form of a report. It only carries display strings
// and numbers; nothing in it refers back to the raw payload.
type Document struct {
	Lang       string
	Header     Header
	Summary    Summary
	Stats      Stats
	Highlights Highlights
	SubReports SubReports
	Footer     Footer
}

// Header is the title block.
type Header struct {
	Title     string
	Viewer    string
	Generated string
}

// Summary holds the summary text split into lines.
type Summary struct {
	Heading     string
	Lines       []string
	Placeholder string
}

// Stat is one sentiment count. Display is Value formatted for the locale.
type Stat struct {
	Key     string
	Label   string
	Value   int
	Display string
}

// Stats lists the four sentiment counts in fixed order plus the total.
type Stats struct {
	Heading    string
	Items      []Stat
	TotalLabel   string
	Total        int
	TotalDisplay string
	Chart        Chart
}

// HighlightItem is a single highlight line.
type HighlightItem struct {
	Text string
	Meta string
}

// Highlights is the highlight list. Placeholder is set only when Items is empty.
type Highlights struct {
	Heading     string
	Items       []HighlightItem
	Placeholder string
}

// SubReportBlock is one titled sub-report.
type SubReportBlock struct {
	Title       string
	Lines       []string
	Placeholder string
}

// SubReports is the sub-report section. Placeholder is set only when Items is empty.
type SubReports struct {
	Heading     string
	Items       []SubReportBlock
	Placeholder string
}

// Footer closes the document.
type Footer struct {
	Text      string
	Brand     string
	Generated string
}

// Empty reports whether the document has no renderable content at all.
func (d Document) Empty() bool {
	return d.Header.Title == "" && len(d.Stats.Items) == 0 && d.Footer.Text == ""
}

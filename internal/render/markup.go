package render

import (
	"bytes"
	"fmt"
	"html/template"
	"sync"

	"github.com/resumail/resumail/web"
)

// DefaultWidthPx is the container width of an A4 page at 96 DPI.
const DefaultWidthPx = 794

// ContentSelector identifies the container element in the markup.
const ContentSelector = "#pdf-content"

var loadTemplate = sync.OnceValues(func() (*template.Template, error) {
	return template.ParseFS(web.Templates, "templates/reports/report.html")
})

type markupData struct {
	Doc     Document
	CSS     template.CSS
	Version string
	Width   int
	Chart   template.HTML
}

// HTML renders the document to a standalone HTML page. Free text is escaped
// by html/template; only the embedded stylesheet and the generated chart are
// inserted verbatim.
func (d Document) HTML(css Stylesheet, widthPx int) (string, error) {
	tpl, err := loadTemplate()
	if err != nil {
		return "", fmt.Errorf("render: parse template: %w", err)
	}
	if widthPx <= 0 {
		widthPx = DefaultWidthPx
	}
	data := markupData{
		Doc:     d,
		CSS:     template.CSS(css.CSS),
		Version: css.Version,
		Width:   widthPx,
	}
	if len(d.Stats.Chart.Segments) > 0 {
		data.Chart = d.Stats.Chart.SVG()
	}
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "report", data); err != nil {
		return "", fmt.Errorf("render: execute template: %w", err)
	}
	return buf.String(), nil
}

package render

import (
	"fmt"
	"html/template"
	"strings"
)

// Chart dimensions in CSS pixels.
const (
	ChartWidth  = 680
	ChartHeight = 36
	chartBarY   = 4
	chartBarH   = 14
)

// Segment is one slice of the sentiment bar.
type Segment struct {
	Key      string
	Label    string
	Value    int
	Fraction float64
	Color    string
}

// Chart is a horizontal stacked bar of the sentiment counts.
type Chart struct {
	Title    string
	NoData   string
	Segments []Segment
}

// HasData reports whether at least one segment is non-empty.
func (c Chart) HasData() bool {
	for _, s := range c.Segments {
		if s.Value > 0 {
			return true
		}
	}
	return false
}

var segmentColors = map[string]string{
	"positive": "#16a34a",
	"neutral":  "#94a3b8",
	"negative": "#dc2626",
	"other":    "#6366f1",
}

func newChart(title, noData string, items []Stat) Chart {
	total := 0
	for _, item := range items {
		total += item.Value
	}
	chart := Chart{Title: title, NoData: noData}
	for _, item := range items {
		seg := Segment{Key: item.Key, Label: item.Label, Value: item.Value, Color: segmentColors[item.Key]}
		if total > 0 {
			seg.Fraction = float64(item.Value) / float64(total)
		}
		chart.Segments = append(chart.Segments, seg)
	}
	return chart
}

// SVG renders the chart as inline SVG. Every text value is escaped.
func (c Chart) SVG() template.HTML {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<svg xmlns=\"http://www.w3.org/2000/svg\" width=\"%d\" height=\"%d\" viewBox=\"0 0 %d %d\" role=\"img\" aria-label=\"%s\">",
		ChartWidth, ChartHeight, ChartWidth, ChartHeight, template.HTMLEscapeString(c.Title)))
	b.WriteString(fmt.Sprintf("<title>%s</title>", template.HTMLEscapeString(c.Title)))
	if !c.HasData() {
		b.WriteString(fmt.Sprintf("<rect x=\"0\" y=\"%d\" width=\"%d\" height=\"%d\" rx=\"4\" fill=\"#e2e8f0\"></rect>", chartBarY, ChartWidth, chartBarH))
		b.WriteString(fmt.Sprintf("<text x=\"%d\" y=\"%d\" fill=\"#94a3b8\" font-size=\"10\" text-anchor=\"middle\">%s</text>",
			ChartWidth/2, ChartHeight-2, template.HTMLEscapeString(c.NoData)))
		b.WriteString("</svg>")
		return template.HTML(b.String())
	}
	x := 0.0
	for _, seg := range c.Segments {
		if seg.Value == 0 {
			continue
		}
		w := seg.Fraction * ChartWidth
		b.WriteString(fmt.Sprintf("<rect x=\"%.2f\" y=\"%d\" width=\"%.2f\" height=\"%d\" fill=\"%s\" aria-label=\"%s %d\"></rect>",
			x, chartBarY, w, chartBarH, seg.Color, template.HTMLEscapeString(seg.Label), seg.Value))
		if w >= 40 {
			b.WriteString(fmt.Sprintf("<text x=\"%.2f\" y=\"%d\" fill=\"#475569\" font-size=\"10\" text-anchor=\"middle\">%s</text>",
				x+w/2, ChartHeight-2, template.HTMLEscapeString(formatShare(seg.Fraction))))
		}
		x += w
	}
	b.WriteString("</svg>")
	return template.HTML(b.String())
}

func formatShare(fraction float64) string {
	return fmt.Sprintf("%.0f%%", fraction*100)
}

// Package report turns loosely shaped analysis payloads into a canonical report.
package report

import (
	"encoding/json"
	"errors"
	"io"
	"slices"
)

// Payload is a decoded report object as returned by the analysis backend. Its
// shape is not trusted: any field may be missing, null or of the wrong type.
type Payload map[string]any

// Classification holds the per-sentiment email counts of a report.
type Classification struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
	Other    int `json:"other"`
}

// Sum returns the number of classified emails.
func (c Classification) Sum() int {
	return c.Positive + c.Neutral + c.Negative + c.Other
}

// Highlight is a recurring theme. Bare highlights only carry text; structured
// ones may also carry an occurrence count and a share.
type Highlight struct {
	Text       string
	Count      *int
	Pct        string
	Structured bool
}

// MarshalJSON emits a bare string for plain highlights and an object otherwise.
func (h Highlight) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.value())
}

func (h Highlight) value() any {
	if !h.Structured {
		return h.Text
	}
	obj := map[string]any{"text": h.Text}
	if h.Count != nil {
		obj["count"] = *h.Count
	}
	if h.Pct != "" {
		obj["pct"] = h.Pct
	}
	return obj
}

// SubReport is a per-batch partial analysis.
type SubReport struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// CanonicalReport is the normalized report consumed by the renderer.
type CanonicalReport struct {
	SummaryText    string         `json:"report_text"`
	Classification Classification `json:"classification"`
	TotalEmails    int            `json:"total_emails"`
	Highlights     []Highlight    `json:"highlights"`
	SubReports     []SubReport    `json:"mini_reports"`
}

// Payload re-emits the report under the primary field names so that it can be
// fed back into Normalize.
func (r CanonicalReport) Payload() Payload {
	highlights := make([]any, 0, len(r.Highlights))
	for _, h := range r.Highlights {
		highlights = append(highlights, h.value())
	}
	subs := make([]any, 0, len(r.SubReports))
	for _, s := range r.SubReports {
		subs = append(subs, map[string]any{"title": s.Title, "text": s.Text})
	}
	return Payload{
		"report_text": r.SummaryText,
		"classification": map[string]any{
			"positive": r.Classification.Positive,
			"neutral":  r.Classification.Neutral,
			"negative": r.Classification.Negative,
			"other":    r.Classification.Other,
		},
		"total_emails": r.TotalEmails,
		"highlights":   highlights,
		"mini_reports": subs,
	}
}

// Clone returns a deep copy so callers cannot mutate shared slices.
func (r CanonicalReport) Clone() CanonicalReport {
	out := r
	out.Highlights = slices.Clone(r.Highlights)
	out.SubReports = slices.Clone(r.SubReports)
	for i, h := range out.Highlights {
		if h.Count != nil {
			v := *h.Count
			out.Highlights[i].Count = &v
		}
	}
	return out
}

// Decode reads a JSON document into a Payload. Documents that are valid JSON
// but not objects decode to an empty payload.
func Decode(r io.Reader) (Payload, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Payload{}, nil
		}
		return Payload{}, err
	}
	if obj, ok := asObject(doc); ok {
		return obj, nil
	}
	return Payload{}, nil
}

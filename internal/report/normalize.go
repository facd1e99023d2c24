package report

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Alias tables, in precedence order.
var (
	summaryKeys        = []string{"report_text", "summary"}
	classificationKeys = []string{"classification", "sentiment_overall", "stats", "sentiments"}
	subReportKeys      = []string{"mini_reports", "miniReports", "mini_report", "sub_reports"}
	totalKeys          = []string{"total_emails", "totalEmails", "total"}
	highlightKeys      = []string{"highlights", "keywords"}
	titleKeys          = []string{"title", "label"}
	textKeys           = []string{"text", "summary", "content", "report_text"}
)

const maxCount = math.MaxInt32

// SubReportTitle is the label used for sub-reports that carry no title.
func SubReportTitle(index int) string {
	return fmt.Sprintf("Mini-rapport %d", index)
}

// Normalize resolves the aliased fields of raw into a CanonicalReport. It
// accepts any payload, including nil, and never fails.
func Normalize(raw Payload) CanonicalReport {
	subs := resolveSubReports(raw)
	cls, clsSource := resolveClassification(raw)
	total, ok := resolveTotal(raw, clsSource)
	if !ok {
		total = min(max(cls.Sum(), len(subs), 0), maxCount)
	}
	return CanonicalReport{
		SummaryText:    firstString(raw, summaryKeys),
		Classification: cls,
		TotalEmails:    total,
		Highlights:     resolveHighlights(raw),
		SubReports:     subs,
	}
}

// ExplicitTotal returns the total count raw declares itself, at the top level
// or inside its classification object, with the same precedence Normalize
// applies.
func ExplicitTotal(raw Payload) (int, bool) {
	_, clsSource := resolveClassification(raw)
	return resolveTotal(raw, clsSource)
}

func resolveClassification(raw Payload) (Classification, map[string]any) {
	for _, key := range classificationKeys {
		obj, ok := asObject(raw[key])
		if !ok {
			continue
		}
		return Classification{
			Positive: countOrZero(obj["positive"]),
			Neutral:  countOrZero(obj["neutral"]),
			Negative: countOrZero(obj["negative"]),
			Other:    countOrZero(obj["other"]),
		}, obj
	}
	return Classification{}, nil
}

func resolveTotal(raw Payload, cls map[string]any) (int, bool) {
	for _, key := range totalKeys {
		if n, ok := toCount(raw[key]); ok {
			return n, true
		}
	}
	if cls != nil {
		if n, ok := toCount(cls["total"]); ok {
			return n, true
		}
	}
	return 0, false
}

func resolveSubReports(raw Payload) []SubReport {
	items, ok := firstList(raw, subReportKeys)
	if !ok {
		return []SubReport{}
	}
	out := make([]SubReport, 0, len(items))
	for _, item := range items {
		index := len(out) + 1
		switch v := item.(type) {
		case nil:
			continue
		case string:
			out = append(out, SubReport{Title: SubReportTitle(index), Text: v})
		default:
			obj, ok := asObject(v)
			if !ok {
				continue
			}
			title := firstString(obj, titleKeys)
			if title == "" {
				title = SubReportTitle(index)
			}
			out = append(out, SubReport{Title: title, Text: firstString(obj, textKeys)})
		}
	}
	return out
}

func resolveHighlights(raw Payload) []Highlight {
	items, ok := firstList(raw, highlightKeys)
	if !ok {
		return []Highlight{}
	}
	out := make([]Highlight, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(v) == "" {
				continue
			}
			out = append(out, Highlight{Text: v})
		default:
			obj, ok := asObject(v)
			if !ok {
				out = append(out, Highlight{Text: encode(v)})
				continue
			}
			h := Highlight{Structured: true}
			if text, ok := obj["text"].(string); ok && text != "" {
				h.Text = text
			} else {
				h.Text = encode(obj)
			}
			if n, ok := toCount(obj["count"]); ok {
				h.Count = &n
			}
			h.Pct = pctString(obj["pct"])
			out = append(out, h)
		}
	}
	return out
}

func firstString(obj map[string]any, keys []string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstList(obj map[string]any, keys []string) ([]any, bool) {
	for _, key := range keys {
		if list, ok := asList(obj[key]); ok {
			return list, true
		}
	}
	return nil, false
}

func asObject(v any) (map[string]any, bool) {
	switch obj := v.(type) {
	case map[string]any:
		return obj, true
	case Payload:
		return obj, true
	}
	return nil, false
}

func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []map[string]any:
		out := make([]any, len(list))
		for i := range list {
			out[i] = list[i]
		}
		return out, true
	case []Payload:
		out := make([]any, len(list))
		for i := range list {
			out[i] = list[i]
		}
		return out, true
	case []string:
		out := make([]any, len(list))
		for i := range list {
			out[i] = list[i]
		}
		return out, true
	case map[string]any, Payload:
		// a lone object under a singular alias
		return []any{list}, true
	}
	return nil, false
}

func countOrZero(v any) int {
	n, _ := toCount(v)
	return n
}

// toCount coerces v to a non-negative integer. The boolean reports whether v
// was numeric at all.
func toCount(v any) (int, bool) {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f <= 0 {
		return 0, true
	}
	if f >= maxCount {
		return maxCount, true
	}
	return int(math.Floor(f)), true
}

func pctString(v any) string {
	switch p := v.(type) {
	case string:
		return strings.TrimSpace(p)
	case json.Number:
		return p.String()
	case float64:
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return ""
		}
		return strconv.FormatFloat(p, 'f', -1, 64)
	case int:
		return strconv.Itoa(p)
	case int64:
		return strconv.FormatInt(p, 10)
	}
	return ""
}

func encode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

package report

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmptyPayload(t *testing.T) {
	for name, raw := range map[string]Payload{"nil": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			got := Normalize(raw)
			assert.Equal(t, "", got.SummaryText)
			assert.Equal(t, Classification{}, got.Classification)
			assert.Equal(t, 0, got.TotalEmails)
			assert.Empty(t, got.Highlights)
			assert.Empty(t, got.SubReports)
			assert.NotNil(t, got.Highlights)
			assert.NotNil(t, got.SubReports)
		})
	}
}

func TestNormalizeNeverPanicsOnHostileShapes(t *testing.T) {
	payloads := []Payload{
		{"report_text": 42, "classification": "nope", "mini_reports": "x", "highlights": 3},
		{"classification": []any{1, 2}, "total_emails": map[string]any{}},
		{"mini_reports": []any{nil, 1, true, []any{}, map[string]any{"title": 7}}},
		{"highlights": []any{nil, 1.5, false, map[string]any{"count": "abc"}}},
		{"classification": map[string]any{"positive": math.NaN(), "neutral": math.Inf(1)}},
	}
	for _, raw := range payloads {
		require.NotPanics(t, func() { Normalize(raw) })
	}
}

func TestNormalizeAliasPrecedence(t *testing.T) {
	tests := []struct {
		name  string
		raw   Payload
		check func(t *testing.T, r CanonicalReport)
	}{
		{
			name: "report_text beats summary",
			raw:  Payload{"report_text": "A", "summary": "B"},
			check: func(t *testing.T, r CanonicalReport) {
				assert.Equal(t, "A", r.SummaryText)
			},
		},
		{
			name: "summary used when report_text missing",
			raw:  Payload{"summary": "B"},
			check: func(t *testing.T, r CanonicalReport) {
				assert.Equal(t, "B", r.SummaryText)
			},
		},
		{
			name: "summary used when report_text is not a string",
			raw:  Payload{"report_text": nil, "summary": "B"},
			check: func(t *testing.T, r CanonicalReport) {
				assert.Equal(t, "B", r.SummaryText)
			},
		},
		{
			name: "classification beats sentiment_overall",
			raw: Payload{
				"classification":    map[string]any{"positive": 1},
				"sentiment_overall": map[string]any{"positive": 9},
			},
			check: func(t *testing.T, r CanonicalReport) {
				assert.Equal(t, 1, r.Classification.Positive)
			},
		},
		{
			name: "stats used as last alias",
			raw:  Payload{"stats": map[string]any{"negative": 4}},
			check: func(t *testing.T, r CanonicalReport) {
				assert.Equal(t, 4, r.Classification.Negative)
			},
		},
		{
			name: "mini_reports beats miniReports",
			raw: Payload{
				"mini_reports": []any{map[string]any{"title": "first"}},
				"miniReports":  []any{map[string]any{"title": "second"}},
			},
			check: func(t *testing.T, r CanonicalReport) {
				require.Len(t, r.SubReports, 1)
				assert.Equal(t, "first", r.SubReports[0].Title)
			},
		},
		{
			name: "sub_reports used when nothing else present",
			raw:  Payload{"sub_reports": []any{map[string]any{"label": "L", "content": "C"}}},
			check: func(t *testing.T, r CanonicalReport) {
				require.Len(t, r.SubReports, 1)
				assert.Equal(t, SubReport{Title: "L", Text: "C"}, r.SubReports[0])
			},
		},
		{
			name: "singular mini_report object",
			raw:  Payload{"mini_report": map[string]any{"summary": "only"}},
			check: func(t *testing.T, r CanonicalReport) {
				require.Len(t, r.SubReports, 1)
				assert.Equal(t, SubReport{Title: "Mini-rapport 1", Text: "only"}, r.SubReports[0])
			},
		},
		{
			name: "total_emails beats total",
			raw:  Payload{"total_emails": 5, "total": 9},
			check: func(t *testing.T, r CanonicalReport) {
				assert.Equal(t, 5, r.TotalEmails)
			},
		},
		{
			name: "total nested in classification",
			raw:  Payload{"classification": map[string]any{"positive": 1, "total": 7}},
			check: func(t *testing.T, r CanonicalReport) {
				assert.Equal(t, 7, r.TotalEmails)
			},
		},
		{
			name: "keywords used when highlights missing",
			raw:  Payload{"keywords": []any{"delay"}},
			check: func(t *testing.T, r CanonicalReport) {
				require.Len(t, r.Highlights, 1)
				assert.Equal(t, "delay", r.Highlights[0].Text)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Normalize(tt.raw))
		})
	}
}

func TestNormalizeSubReportDefaults(t *testing.T) {
	got := Normalize(Payload{"mini_reports": []any{
		map[string]any{"text": "a"},
		"plain text",
		map[string]any{"title": "Named", "summary": "b"},
		map[string]any{},
	}})

	require.Len(t, got.SubReports, 4)
	assert.Equal(t, SubReport{Title: "Mini-rapport 1", Text: "a"}, got.SubReports[0])
	assert.Equal(t, SubReport{Title: "Mini-rapport 2", Text: "plain text"}, got.SubReports[1])
	assert.Equal(t, SubReport{Title: "Named", Text: "b"}, got.SubReports[2])
	assert.Equal(t, SubReport{Title: "Mini-rapport 4", Text: ""}, got.SubReports[3])
}

func TestNormalizeClassificationDefault(t *testing.T) {
	got := Normalize(Payload{"report_text": "x"})
	assert.Equal(t, Classification{}, got.Classification)
}

func TestNormalizeTotalInvariant(t *testing.T) {
	t.Run("sum of classification", func(t *testing.T) {
		got := Normalize(Payload{"classification": map[string]any{"positive": 3, "neutral": 2, "negative": 1, "other": 0}})
		assert.Equal(t, 6, got.TotalEmails)
	})
	t.Run("sub-report count wins when larger", func(t *testing.T) {
		got := Normalize(Payload{
			"classification": map[string]any{"positive": 1},
			"mini_reports":   []any{"a", "b", "c"},
		})
		assert.Equal(t, 3, got.TotalEmails)
	})
	t.Run("explicit value wins even when inconsistent", func(t *testing.T) {
		got := Normalize(Payload{
			"total_emails":   2,
			"classification": map[string]any{"positive": 10},
		})
		assert.Equal(t, 2, got.TotalEmails)
	})
	t.Run("non numeric explicit value is ignored", func(t *testing.T) {
		got := Normalize(Payload{
			"total_emails":   "many",
			"classification": map[string]any{"positive": 4},
		})
		assert.Equal(t, 4, got.TotalEmails)
	})
}

func TestNormalizeClampsCounts(t *testing.T) {
	got := Normalize(Payload{"classification": map[string]any{
		"positive": -5,
		"neutral":  "3",
		"negative": 2.9,
		"other":    true,
	}})
	assert.Equal(t, Classification{Positive: 0, Neutral: 3, Negative: 2, Other: 0}, got.Classification)
	assert.Equal(t, 5, got.TotalEmails)

	got = Normalize(Payload{"total_emails": -4})
	assert.Equal(t, 0, got.TotalEmails)
}

func TestNormalizeHighlights(t *testing.T) {
	got := Normalize(Payload{"highlights": []any{
		"fast shipping",
		"   ",
		map[string]any{"text": "refunds", "count": 4, "pct": "40%"},
		map[string]any{"count": 2},
		json.Number("12"),
		nil,
	}})

	require.Len(t, got.Highlights, 4)
	assert.Equal(t, Highlight{Text: "fast shipping"}, got.Highlights[0])

	refunds := got.Highlights[1]
	assert.True(t, refunds.Structured)
	assert.Equal(t, "refunds", refunds.Text)
	require.NotNil(t, refunds.Count)
	assert.Equal(t, 4, *refunds.Count)
	assert.Equal(t, "40%", refunds.Pct)

	assert.Equal(t, `{"count":2}`, got.Highlights[2].Text)
	assert.Equal(t, "12", got.Highlights[3].Text)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	payloads := []Payload{
		{},
		{
			"summary":           "Line one\nLine two",
			"sentiment_overall": map[string]any{"positive": "8", "neutral": 1.7, "negative": -1},
			"miniReports":       []any{"raw", map[string]any{"label": "B", "content": "c"}},
			"keywords":          []any{map[string]any{"text": "x", "pct": 12.5}, 7},
		},
		{
			"report_text":    "Great quarter",
			"classification": map[string]any{"positive": 8, "neutral": 1, "negative": 1, "other": 0},
			"highlights":     []any{"fast shipping"},
			"mini_reports":   []any{map[string]any{"title": "Batch 1", "text": "ok"}},
			"total_emails":   99,
		},
		// the computed sum exceeds the count ceiling
		{"sentiment_overall": map[string]any{"positive": "3", "negative": 1e30}},
	}
	for _, raw := range payloads {
		once := Normalize(raw)
		twice := Normalize(once.Payload())
		assert.Equal(t, once, twice)
	}
}

func TestNormalizeClampsComputedTotal(t *testing.T) {
	rep := Normalize(Payload{"classification": map[string]any{"positive": 1e30, "negative": 1e30}})
	assert.Equal(t, math.MaxInt32, rep.TotalEmails)
	assert.Equal(t, math.MaxInt32, rep.Classification.Positive)
}

func TestExplicitTotal(t *testing.T) {
	cases := []struct {
		name string
		raw  Payload
		want int
		ok   bool
	}{
		{name: "absent", raw: Payload{"classification": map[string]any{"positive": 3}}},
		{name: "top level", raw: Payload{"totalEmails": "7"}, want: 7, ok: true},
		{name: "nested", raw: Payload{"stats": map[string]any{"total": 5}}, want: 5, ok: true},
		{name: "top level wins", raw: Payload{"total": 2, "classification": map[string]any{"total": 9}}, want: 2, ok: true},
		{name: "not numeric", raw: Payload{"total_emails": "many"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExplicitTotal(tc.raw)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeSurvivesJSONRoundTrip(t *testing.T) {
	once := Normalize(Payload{
		"report_text":  "ok",
		"highlights":   []any{map[string]any{"text": "x", "count": 2}},
		"mini_reports": []any{"a"},
	})
	data, err := json.Marshal(once)
	require.NoError(t, err)

	decoded, err := Decode(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, once, Normalize(decoded))
}

func TestDecode(t *testing.T) {
	p, err := Decode(strings.NewReader(`{"total_emails": 3}`))
	require.NoError(t, err)
	assert.Equal(t, 3, Normalize(p).TotalEmails)

	p, err = Decode(strings.NewReader(`[1,2]`))
	require.NoError(t, err)
	assert.Empty(t, p)

	p, err = Decode(strings.NewReader(``))
	require.NoError(t, err)
	assert.Empty(t, p)

	_, err = Decode(strings.NewReader(`{"broken"`))
	require.Error(t, err)
}

func TestCloneDetachesSlices(t *testing.T) {
	n := 2
	r := CanonicalReport{Highlights: []Highlight{{Text: "a", Count: &n, Structured: true}}}
	c := r.Clone()
	*c.Highlights[0].Count = 5
	c.Highlights[0].Text = "b"
	assert.Equal(t, 2, *r.Highlights[0].Count)
	assert.Equal(t, "a", r.Highlights[0].Text)
}

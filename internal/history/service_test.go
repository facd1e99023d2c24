package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumail/resumail/internal/platform/httpx"
	"github.com/resumail/resumail/internal/report"
)

type stubBackend struct {
	reports    []report.Payload
	reportsErr error
	stats      report.Payload
	statsErr   error
}

func (s *stubBackend) UserReports(context.Context, string) ([]report.Payload, error) {
	return s.reports, s.reportsErr
}

func (s *stubBackend) UserStats(context.Context, string) (report.Payload, error) {
	return s.stats, s.statsErr
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var errStatsDown = fmt.Errorf("stats: %w", httpx.ErrUnavailable)

func dashboardReports() []report.Payload {
	return []report.Payload{
		{
			"id":                "r-older-000",
			"created_at":        "2025-03-01T10:00:00Z",
			"report_text":       "older summary",
			"sentiment_overall": map[string]any{"positive": 2, "negative": 2},
			"total_emails":      4,
		},
		{
			"id":             "r-newest-00",
			"created_at":     "2025-03-02T08:30:00Z",
			"summary":        "newest summary",
			"classification": map[string]any{"positive": 5, "neutral": 1},
			"is_final":       true,
		},
		{
			"id":           "r-same-day",
			"created_at":   "2025-03-01 18:00:00",
			"report_text":  "same day",
			"total_emails": "3",
		},
		{"id": "r-older-000", "report_text": "duplicate"},
		{"id": 17, "report_text": "no date"},
	}
}

// ========================================
// History
// ========================================

func TestHistoryNewestFirstWithPDFLinks(t *testing.T) {
	svc := NewService(&stubBackend{reports: dashboardReports()}, quiet())

	entries, err := svc.History(context.Background(), "u1")
	require.NoError(t, err)

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"r-newest-00", "r-same-day", "r-older-000", "17"}, ids)

	newest := entries[0]
	assert.Equal(t, "r-newe", newest.ShortID)
	assert.Equal(t, 6, newest.TotalEmails)
	assert.Equal(t, "newest summary", newest.Excerpt)
	assert.True(t, newest.Final)
	assert.Equal(t, "/reports/r-newest-00/pdf", newest.PDFURL)
	require.NotNil(t, newest.CreatedAt)
	assert.Equal(t, "2025-03-02", newest.CreatedAt.Format("2006-01-02"))

	assert.Equal(t, "older summary", entries[2].Excerpt)
	assert.Nil(t, entries[3].CreatedAt)
	assert.Equal(t, "17", entries[3].ShortID)
}

func TestHistoryTruncatesExcerpt(t *testing.T) {
	long := ""
	for range ExcerptRunes + 50 {
		long += "é"
	}
	svc := NewService(&stubBackend{reports: []report.Payload{{"id": "a", "report_text": long}}}, quiet())

	entries, err := svc.History(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ExcerptRunes+1, len([]rune(entries[0].Excerpt)))
	assert.Equal(t, "…", string([]rune(entries[0].Excerpt)[ExcerptRunes]))
}

func TestHistoryCapsReportCount(t *testing.T) {
	reports := make([]report.Payload, MaxReports+20)
	for i := range reports {
		reports[i] = report.Payload{"id": fmt.Sprintf("r%d", i)}
	}
	entries, err := NewService(&stubBackend{reports: reports}, quiet()).History(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, entries, MaxReports)
}

func TestHistoryRequiresUser(t *testing.T) {
	_, err := NewService(&stubBackend{}, quiet()).History(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrUserRequired)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestHistoryWrapsBackendErrors(t *testing.T) {
	backend := &stubBackend{reportsErr: fmt.Errorf("boom: %w", httpx.ErrUnavailable)}
	_, err := NewService(backend, quiet()).History(context.Background(), "u1")
	assert.ErrorIs(t, err, httpx.ErrUnavailable)
}

// ========================================
// Stats
// ========================================

func TestStatsComputedWhenBackendStatsFail(t *testing.T) {
	svc := NewService(&stubBackend{reports: dashboardReports(), statsErr: errStatsDown}, quiet())

	stats, err := svc.Stats(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, SourceComputed, stats.Source)
	assert.Equal(t, 4, stats.Reports)
	// 6 + 3 + 4 + 0
	assert.Equal(t, 13, stats.TotalEmails)
	// positive 7/4, neutral 1/4, negative 2/4
	assert.Equal(t, report.Classification{Positive: 2, Neutral: 0, Negative: 1, Other: 0}, stats.Average)
	assert.Equal(t, "newest summary", stats.LastSummary)
	assert.Equal(t, []DayCount{
		{Date: "2025-03-01", Emails: 7},
		{Date: "2025-03-02", Emails: 6},
		{Date: UnknownDay, Emails: 0},
	}, stats.Series)
}

func TestStatsPrefersBackendFigures(t *testing.T) {
	backend := &stubBackend{
		reports: dashboardReports(),
		stats: report.Payload{
			"total_emails": 99,
			"avg":          map[string]any{"positive": "7", "neutral": 1},
			"last_summary": "from backend",
		},
	}
	stats, err := NewService(backend, quiet()).Stats(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, SourceBackend, stats.Source)
	assert.Equal(t, 99, stats.TotalEmails)
	assert.Equal(t, report.Classification{Positive: 7, Neutral: 1}, stats.Average)
	assert.Equal(t, "from backend", stats.LastSummary)
	assert.Len(t, stats.Series, 3)
}

func TestStatsPartialBackendFigures(t *testing.T) {
	backend := &stubBackend{reports: dashboardReports(), stats: report.Payload{"avg": map[string]any{"other": 3}}}
	stats, err := NewService(backend, quiet()).Stats(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 13, stats.TotalEmails)
	assert.Equal(t, "newest summary", stats.LastSummary)
	assert.Equal(t, report.Classification{Other: 3}, stats.Average)
}

func TestStatsWithoutReports(t *testing.T) {
	stats, err := NewService(&stubBackend{statsErr: errStatsDown}, quiet()).Stats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalEmails)
	assert.Zero(t, stats.Average)
	assert.Empty(t, stats.LastSummary)
	assert.NotNil(t, stats.Series)
	assert.Empty(t, stats.Series)
}

func TestStatsStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	backend := &stubBackend{reports: dashboardReports(), statsErr: context.Canceled}
	_, err := NewService(backend, quiet()).Stats(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)
}

// ========================================
// HTTP
// ========================================

func newServer(t *testing.T, backend Backend) *httptest.Server {
	t.Helper()
	router := chi.NewRouter()
	NewHandler(quiet(), NewService(backend, quiet())).MountRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHandlerListsHistory(t *testing.T) {
	srv := newServer(t, &stubBackend{reports: dashboardReports()})

	var body struct {
		Reports []Entry `json:"reports"`
	}
	status := getJSON(t, srv.URL+"/reports?user=u1", &body)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body.Reports, 4)
	assert.Equal(t, "/reports/r-newest-00/pdf", body.Reports[0].PDFURL)
}

func TestHandlerReturnsStats(t *testing.T) {
	srv := newServer(t, &stubBackend{reports: dashboardReports(), statsErr: errStatsDown})

	var stats Stats
	status := getJSON(t, srv.URL+"/reports/stats?user=u1", &stats)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 13, stats.TotalEmails)
	assert.Equal(t, SourceComputed, stats.Source)
}

func TestHandlerRejectsMissingUser(t *testing.T) {
	srv := newServer(t, &stubBackend{})

	var problem httpx.ProblemDetail
	status := getJSON(t, srv.URL+"/reports", &problem)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "required", problem.Fields["user"])
}

func TestHandlerMapsBackendFailure(t *testing.T) {
	srv := newServer(t, &stubBackend{reportsErr: errors.Join(errors.New("dial"), httpx.ErrUnavailable)})
	status := getJSON(t, srv.URL+"/reports/stats?user=u1", nil)
	assert.Equal(t, http.StatusBadGateway, status)
}

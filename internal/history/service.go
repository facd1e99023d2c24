// Package history lists a user's stored reports and aggregates them into the
// dashboard figures.
package history

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/resumail/resumail/internal/platform/httpx"
	"github.com/resumail/resumail/internal/report"
)

const (
	// MaxReports caps how many reports a history or aggregate considers.
	MaxReports = 200
	// ExcerptRunes is the length of the summary excerpt in a history entry.
	ExcerptRunes = 240
	// UnknownDay buckets reports without a readable creation date.
	UnknownDay = "unknown"
)

// ErrUserRequired is returned when no user id is given.
var ErrUserRequired = fmt.Errorf("history: user id required: %w", httpx.ErrValidation)

// Backend is the subset of the backend client used here.
type Backend interface {
	UserReports(ctx context.Context, userID string) ([]report.Payload, error)
	UserStats(ctx context.Context, userID string) (report.Payload, error)
}

// Entry is one report in a user's history.
type Entry struct {
	ID          string     `json:"id"`
	ShortID     string     `json:"short_id"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	TotalEmails int        `json:"total_emails"`
	Excerpt     string     `json:"excerpt"`
	Final       bool       `json:"is_final"`
	PDFURL      string     `json:"pdf_url"`
}

// DayCount is the number of emails analysed on one day (YYYY-MM-DD, UTC).
type DayCount struct {
	Date   string `json:"date"`
	Emails int    `json:"emails"`
}

// Source tells where the headline figures of Stats came from.
type Source string

const (
	SourceBackend  Source = "backend"
	SourceComputed Source = "computed"
)

// Stats is the dashboard aggregate for one user.
type Stats struct {
	TotalEmails int                   `json:"total_emails"`
	Average     report.Classification `json:"avg"`
	LastSummary string                `json:"last_summary"`
	Reports     int                   `json:"reports"`
	Series      []DayCount            `json:"series"`
	Source      Source                `json:"source"`
}

// Service reads history from the backend.
type Service struct {
	backend Backend
	logger  *slog.Logger
}

// NewService constructs a Service.
func NewService(b Backend, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: b, logger: logger}
}

type record struct {
	id      string
	created *time.Time
	final   bool
	report  report.CanonicalReport
}

// History returns the user's reports, newest first, deduplicated by id.
func (s *Service) History(ctx context.Context, userID string) ([]Entry, error) {
	records, err := s.records(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(records))
	for _, rec := range records {
		entry := Entry{
			ID:          rec.id,
			ShortID:     shortID(rec.id),
			CreatedAt:   rec.created,
			TotalEmails: rec.report.TotalEmails,
			Excerpt:     excerpt(rec.report.SummaryText, ExcerptRunes),
			Final:       rec.final,
		}
		if rec.id != "" {
			entry.PDFURL = "/reports/" + url.PathEscape(rec.id) + "/pdf"
		}
		out = append(out, entry)
	}
	return out, nil
}

// Stats returns the dashboard aggregate. The backend figures are used when
// the stats endpoint answers; otherwise they are computed from the reports.
// The per-day series is always computed from the reports.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	records, err := s.records(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	stats := aggregate(records)

	remote, err := s.backend.UserStats(ctx, userID)
	switch {
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Stats{}, ctxErr
		}
		s.logger.Warn("backend stats unavailable, computing from reports",
			slog.String("user_id", userID), slog.Any("error", err))
	case remote != nil:
		applyRemote(&stats, remote)
	}
	return stats, nil
}

func (s *Service) records(ctx context.Context, userID string) ([]record, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserRequired
	}
	payloads, err := s.backend.UserReports(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("history: reports of %s: %w", userID, err)
	}

	seen := make(map[string]bool, len(payloads))
	records := make([]record, 0, len(payloads))
	for _, p := range payloads {
		if p == nil {
			continue
		}
		id := stringField(p, "id")
		if id != "" {
			if seen[id] {
				continue
			}
			seen[id] = true
		}
		final, _ := p["is_final"].(bool)
		records = append(records, record{
			id:      id,
			created: parseTime(p["created_at"]),
			final:   final,
			report:  report.Normalize(p),
		})
	}
	slices.SortStableFunc(records, func(a, b record) int {
		switch {
		case a.created == nil && b.created == nil:
			return 0
		case a.created == nil:
			return 1
		case b.created == nil:
			return -1
		}
		return b.created.Compare(*a.created)
	})
	if len(records) > MaxReports {
		records = records[:MaxReports]
	}
	return records, nil
}

func aggregate(records []record) Stats {
	stats := Stats{Reports: len(records), Source: SourceComputed, Series: []DayCount{}}
	var sum report.Classification
	days := make(map[string]int)
	for _, rec := range records {
		stats.TotalEmails += rec.report.TotalEmails
		sum.Positive += rec.report.Classification.Positive
		sum.Neutral += rec.report.Classification.Neutral
		sum.Negative += rec.report.Classification.Negative
		sum.Other += rec.report.Classification.Other

		day := UnknownDay
		if rec.created != nil {
			day = rec.created.UTC().Format(time.DateOnly)
		}
		days[day] += rec.report.TotalEmails
	}
	n := max(len(records), 1)
	stats.Average = report.Classification{
		Positive: roundDiv(sum.Positive, n),
		Neutral:  roundDiv(sum.Neutral, n),
		Negative: roundDiv(sum.Negative, n),
		Other:    roundDiv(sum.Other, n),
	}
	if len(records) > 0 {
		stats.LastSummary = records[0].report.SummaryText
	}
	for day, emails := range days {
		stats.Series = append(stats.Series, DayCount{Date: day, Emails: emails})
	}
	slices.SortFunc(stats.Series, func(a, b DayCount) int { return cmp.Compare(a.Date, b.Date) })
	return stats
}

// applyRemote overlays the figures the backend reports. Fields the backend
// leaves out keep their computed value.
func applyRemote(stats *Stats, remote report.Payload) {
	if total, ok := report.ExplicitTotal(remote); ok {
		stats.TotalEmails = total
		stats.Source = SourceBackend
	}
	if avg, ok := remote["avg"]; ok && avg != nil {
		stats.Average = report.Normalize(report.Payload{"classification": avg}).Classification
		stats.Source = SourceBackend
	}
	if summary, ok := remote["last_summary"].(string); ok {
		stats.LastSummary = summary
		stats.Source = SourceBackend
	}
}

func roundDiv(sum, n int) int {
	return int(math.Round(float64(sum) / float64(n)))
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999-07", "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05", time.DateOnly}

func parseTime(v any) *time.Time {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func stringField(p report.Payload, key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%.0f", v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func shortID(id string) string {
	if utf8.RuneCountInString(id) <= 6 {
		return id
	}
	return string([]rune(id)[:6])
}

func excerpt(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)[:limit]
	return strings.TrimRight(string(runes), " ") + "…"
}

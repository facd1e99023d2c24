package archive

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service orchestrates archive creation and status transitions.
type Service struct {
	store Store
	now   func() time.Time
	newID func() uuid.UUID
}

// NewService constructs a Service instance.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now, newID: uuid.New}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create inserts a new PENDING archive after validating inputs.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Archive, error) {
	if err := req.Validate(); err != nil {
		return Archive{}, err
	}
	return s.store.Insert(ctx, Archive{
		ID:       s.newID(),
		ReportID: strings.TrimSpace(req.ReportID),
		Viewer:   strings.TrimSpace(req.Viewer),
		Locale:   strings.ToLower(strings.TrimSpace(req.Locale)),
		Status:   StatusPending,
	})
}

// Get loads a single archive.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Archive, error) {
	return s.store.Get(ctx, id)
}

// ListByReport returns up to limit archives of a report, newest first.
func (s *Service) ListByReport(ctx context.Context, reportID string, limit int) ([]Archive, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListByReport(ctx, strings.TrimSpace(reportID), limit)
}

// Stale lists PENDING archives untouched for longer than olderThan.
func (s *Service) Stale(ctx context.Context, olderThan time.Duration, limit int) ([]Archive, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListStale(ctx, StatusPending, s.now().Add(-olderThan), limit)
}

// Stalled lists IN_PROGRESS archives untouched for longer than olderThan.
// Their worker most likely died mid-run.
func (s *Service) Stalled(ctx context.Context, olderThan time.Duration, limit int) ([]Archive, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListStale(ctx, StatusInProgress, s.now().Add(-olderThan), limit)
}

// Reclaim moves an archive stuck IN_PROGRESS for longer than olderThan back
// to PENDING.
func (s *Service) Reclaim(ctx context.Context, id uuid.UUID, olderThan time.Duration) error {
	since := s.now().Add(-olderThan)
	return s.store.Reclaim(ctx, id, since, "reclaimed: no progress since "+since.UTC().Format(time.RFC3339))
}

// MarkInProgress transitions an archive to in-progress.
func (s *Service) MarkInProgress(ctx context.Context, id uuid.UUID) error {
	return s.store.MarkInProgress(ctx, id)
}

// MarkReady persists the generated file. A zero GeneratedAt is stamped with
// the service clock.
func (s *Service) MarkReady(ctx context.Context, id uuid.UUID, res Result) (Archive, error) {
	if res.GeneratedAt.IsZero() {
		res.GeneratedAt = s.now()
	}
	if err := s.store.MarkReady(ctx, id, res); err != nil {
		return Archive{}, err
	}
	return s.store.Get(ctx, id)
}

// MarkFailed records the failure message.
func (s *Service) MarkFailed(ctx context.Context, id uuid.UUID, msg string) error {
	return s.store.MarkFailed(ctx, id, msg)
}

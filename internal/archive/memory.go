package archive

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local Store, used when no database is configured.
type MemoryStore struct {
	mu       sync.Mutex
	archives map[uuid.UUID]Archive
	now      func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{archives: make(map[uuid.UUID]Archive), now: time.Now}
}

func (m *MemoryStore) Insert(_ context.Context, a Archive) (Archive, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.archives {
		open := existing.Status == StatusPending || existing.Status == StatusInProgress
		if open && existing.ReportID == a.ReportID && strings.EqualFold(existing.Viewer, a.Viewer) && existing.Locale == a.Locale {
			return Archive{}, ErrAlreadyQueued
		}
	}
	now := m.now()
	a.Status = StatusPending
	a.CreatedAt = now
	a.UpdatedAt = now
	m.archives[a.ID] = a
	return a, nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (Archive, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.archives[id]
	if !ok {
		return Archive{}, ErrArchiveNotFound
	}
	return a, nil
}

func (m *MemoryStore) ListByReport(_ context.Context, reportID string, limit int) ([]Archive, error) {
	return m.list(func(a Archive) bool { return a.ReportID == reportID }, func(a, b Archive) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	}, limit), nil
}

func (m *MemoryStore) ListStale(_ context.Context, status Status, before time.Time, limit int) ([]Archive, error) {
	return m.list(func(a Archive) bool { return a.Status == status && a.UpdatedAt.Before(before) }, func(a, b Archive) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	}, limit), nil
}

func (m *MemoryStore) list(keep func(Archive) bool, order func(a, b Archive) int, limit int) []Archive {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Archive
	for _, a := range m.archives {
		if keep(a) {
			out = append(out, a)
		}
	}
	slices.SortStableFunc(out, order)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MemoryStore) MarkInProgress(_ context.Context, id uuid.UUID) error {
	return m.update(id, func(a *Archive) error {
		if a.Status != StatusPending && a.Status != StatusFailed {
			return ErrInvalidStatus
		}
		a.Status = StatusInProgress
		a.ErrorMessage = ""
		return nil
	})
}

func (m *MemoryStore) MarkReady(_ context.Context, id uuid.UUID, res Result) error {
	return m.update(id, func(a *Archive) error {
		size, pages, generated := res.FileSize, res.PageCount, res.GeneratedAt
		a.Status = StatusReady
		a.FileName = res.FileName
		a.FilePath = res.FilePath
		a.FileSize = &size
		a.PageCount = &pages
		a.Digest = res.Digest
		a.GeneratedAt = &generated
		a.ErrorMessage = ""
		return nil
	})
}

func (m *MemoryStore) MarkFailed(_ context.Context, id uuid.UUID, msg string) error {
	return m.update(id, func(a *Archive) error {
		a.Status = StatusFailed
		a.ErrorMessage = truncateError(msg)
		return nil
	})
}

func (m *MemoryStore) Reclaim(_ context.Context, id uuid.UUID, before time.Time, msg string) error {
	return m.update(id, func(a *Archive) error {
		if a.Status != StatusInProgress || !a.UpdatedAt.Before(before) {
			return ErrInvalidStatus
		}
		a.Status = StatusPending
		a.ErrorMessage = truncateError(msg)
		return nil
	})
}

func (m *MemoryStore) update(id uuid.UUID, fn func(*Archive) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.archives[id]
	if !ok {
		return ErrArchiveNotFound
	}
	if err := fn(&a); err != nil {
		return err
	}
	a.UpdatedAt = m.now()
	m.archives[a.ID] = a
	return nil
}

var _ Store = (*MemoryStore)(nil)

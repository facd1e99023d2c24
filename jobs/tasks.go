package jobs

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskArchiveGenerate renders a stored report archive to PDF.
	TaskArchiveGenerate = "archive:generate"
	// TaskArchiveSweep requeues archives stuck in PENDING or IN_PROGRESS.
	TaskArchiveSweep = "archive:sweep"

	// ArchiveTimeout bounds one generation attempt.
	ArchiveTimeout = 5 * time.Minute
	// ArchiveStallAfter is how long an archive may sit IN_PROGRESS before it
	// is considered abandoned. It must exceed ArchiveTimeout.
	ArchiveStallAfter = 3 * ArchiveTimeout
)

// ArchivePayload identifies the archive to generate.
type ArchivePayload struct {
	ArchiveID string `json:"archive_id"`
}

// ArchiveSweepPayload configures the stale archive sweep.
type ArchiveSweepPayload struct {
	OlderThanSeconds    int `json:"older_than_seconds"`
	StalledAfterSeconds int `json:"stalled_after_seconds,omitempty"`
	Limit               int `json:"limit"`
}

// OlderThan returns the staleness threshold, defaulting to ten minutes.
func (p ArchiveSweepPayload) OlderThan() time.Duration {
	if p.OlderThanSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(p.OlderThanSeconds) * time.Second
}

// StalledAfter returns the IN_PROGRESS threshold, defaulting to
// ArchiveStallAfter.
func (p ArchiveSweepPayload) StalledAfter() time.Duration {
	if p.StalledAfterSeconds <= 0 {
		return ArchiveStallAfter
	}
	return time.Duration(p.StalledAfterSeconds) * time.Second
}

// NewArchiveGenerateTask constructs the generation task for an archive.
func NewArchiveGenerateTask(archiveID string) (*asynq.Task, error) {
	archiveID = strings.TrimSpace(archiveID)
	if archiveID == "" {
		return nil, errors.New("jobs: archive id required")
	}
	data, err := json.Marshal(ArchivePayload{ArchiveID: archiveID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskArchiveGenerate, data), nil
}

// NewArchiveSweepTask constructs the sweep task.
func NewArchiveSweepTask(olderThan time.Duration, limit int) (*asynq.Task, error) {
	data, err := json.Marshal(ArchiveSweepPayload{OlderThanSeconds: int(olderThan / time.Second), Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskArchiveSweep, data), nil
}

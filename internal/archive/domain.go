// Package archive persists server-side report exports and generates them
// through the background queue.
package archive

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/resumail/resumail/internal/platform/httpx"
)

// Status captures the state of an archive record.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusReady      Status = "READY"
	StatusFailed     Status = "FAILED"
)

// Archive is a persisted export request and its result.
type Archive struct {
	ID           uuid.UUID  `json:"id"`
	ReportID     string     `json:"report_id"`
	Viewer       string     `json:"viewer"`
	Locale       string     `json:"locale,omitempty"`
	Status       Status     `json:"status"`
	FileName     string     `json:"file_name,omitempty"`
	FilePath     string     `json:"-"`
	FileSize     *int64     `json:"file_size,omitempty"`
	PageCount    *int       `json:"page_count,omitempty"`
	Digest       string     `json:"digest,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	GeneratedAt  *time.Time `json:"generated_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Downloadable reports whether the file can be served.
func (a Archive) Downloadable() bool {
	return a.Status == StatusReady && a.FilePath != ""
}

// CreateRequest defines the payload accepted when requesting an archive.
type CreateRequest struct {
	ReportID string
	Viewer   string
	Locale   string
}

// Validate ensures the creation request can be processed.
func (r CreateRequest) Validate() error {
	if strings.TrimSpace(r.ReportID) == "" {
		return fmt.Errorf("archive: report id required: %w", httpx.ErrValidation)
	}
	if len(r.Viewer) > 320 {
		return fmt.Errorf("archive: viewer too long: %w", httpx.ErrValidation)
	}
	return nil
}

// Result is the outcome of a successful generation.
type Result struct {
	FileName    string
	FilePath    string
	FileSize    int64
	PageCount   int
	Digest      string
	GeneratedAt time.Time
}

var (
	ErrArchiveNotFound = fmt.Errorf("archive: %w", httpx.ErrNotFound)
	ErrAlreadyQueued   = fmt.Errorf("archive: an unfinished archive already exists: %w", httpx.ErrConflict)
	ErrInvalidStatus   = errors.New("archive: invalid status transition")
	ErrNotReady        = fmt.Errorf("archive: file not ready: %w", httpx.ErrConflict)
)

// NormaliseStatus uppercases and trims the provided status string. Unknown
// values yield "".
func NormaliseStatus(v string) Status {
	v = strings.TrimSpace(strings.ToUpper(v))
	switch Status(v) {
	case StatusPending, StatusInProgress, StatusReady, StatusFailed:
		return Status(v)
	default:
		return ""
	}
}

package archive

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the persistence contract used by Service.
type Store interface {
	Insert(ctx context.Context, a Archive) (Archive, error)
	Get(ctx context.Context, id uuid.UUID) (Archive, error)
	ListByReport(ctx context.Context, reportID string, limit int) ([]Archive, error)
	ListStale(ctx context.Context, status Status, before time.Time, limit int) ([]Archive, error)
	MarkInProgress(ctx context.Context, id uuid.UUID) error
	MarkReady(ctx context.Context, id uuid.UUID, res Result) error
	MarkFailed(ctx context.Context, id uuid.UUID, msg string) error
	// Reclaim returns an IN_PROGRESS archive untouched since before to
	// PENDING. It fails with ErrInvalidStatus when the archive moved on.
	Reclaim(ctx context.Context, id uuid.UUID, before time.Time, msg string) error
}

// Repository persists archives in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const archiveColumns = `id, report_id, viewer, locale, status, file_name, file_path, file_size, page_count,
digest, error_message, generated_at, created_at, updated_at`

var errNotInitialised = errors.New("archive: repository not initialised")

// Insert stores a new PENDING archive.
func (r *Repository) Insert(ctx context.Context, a Archive) (Archive, error) {
	if r == nil || r.pool == nil {
		return Archive{}, errNotInitialised
	}
	row := r.pool.QueryRow(ctx, `INSERT INTO report_archives (id, report_id, viewer, locale, status)
VALUES ($1, $2, $3, $4, 'PENDING')
RETURNING `+archiveColumns, a.ID, a.ReportID, a.Viewer, a.Locale)
	out, err := scanArchive(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Archive{}, ErrAlreadyQueued
		}
		return Archive{}, err
	}
	return out, nil
}

// Get loads an archive by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Archive, error) {
	if r == nil || r.pool == nil {
		return Archive{}, errNotInitialised
	}
	a, err := scanArchive(r.pool.QueryRow(ctx, `SELECT `+archiveColumns+` FROM report_archives WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Archive{}, ErrArchiveNotFound
	}
	return a, err
}

// ListByReport returns the newest archives of a report.
func (r *Repository) ListByReport(ctx context.Context, reportID string, limit int) ([]Archive, error) {
	if r == nil || r.pool == nil {
		return nil, errNotInitialised
	}
	rows, err := r.pool.Query(ctx, `SELECT `+archiveColumns+`
FROM report_archives
WHERE report_id = $1
ORDER BY created_at DESC
LIMIT $2`, reportID, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListStale returns archives in status not updated since before, oldest first.
func (r *Repository) ListStale(ctx context.Context, status Status, before time.Time, limit int) ([]Archive, error) {
	if r == nil || r.pool == nil {
		return nil, errNotInitialised
	}
	rows, err := r.pool.Query(ctx, `SELECT `+archiveColumns+`
FROM report_archives
WHERE status = $1 AND updated_at < $2
ORDER BY updated_at
LIMIT $3`, string(status), before, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// MarkInProgress claims a PENDING or FAILED archive.
func (r *Repository) MarkInProgress(ctx context.Context, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return errNotInitialised
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE report_archives
SET status = 'IN_PROGRESS', error_message = NULL, updated_at = NOW()
WHERE id = $1 AND status IN ('PENDING', 'FAILED')`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// MarkReady records the generated file.
func (r *Repository) MarkReady(ctx context.Context, id uuid.UUID, res Result) error {
	if r == nil || r.pool == nil {
		return errNotInitialised
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE report_archives
SET status = 'READY', file_name = $2, file_path = $3, file_size = $4, page_count = $5,
    digest = $6, generated_at = $7, error_message = NULL, updated_at = NOW()
WHERE id = $1`, id, res.FileName, res.FilePath, res.FileSize, res.PageCount, res.Digest, res.GeneratedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrArchiveNotFound
	}
	return nil
}

// MarkFailed records a generation failure.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, msg string) error {
	if r == nil || r.pool == nil {
		return errNotInitialised
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE report_archives SET status = 'FAILED', error_message = $2, updated_at = NOW() WHERE id = $1`, id, truncateError(msg))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrArchiveNotFound
	}
	return nil
}

// Reclaim releases a stalled claim.
func (r *Repository) Reclaim(ctx context.Context, id uuid.UUID, before time.Time, msg string) error {
	if r == nil || r.pool == nil {
		return errNotInitialised
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE report_archives
SET status = 'PENDING', error_message = $3, updated_at = NOW()
WHERE id = $1 AND status = 'IN_PROGRESS' AND updated_at < $2`, id, before, truncateError(msg))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func collect(rows pgx.Rows) ([]Archive, error) {
	defer rows.Close()
	var out []Archive
	for rows.Next() {
		a, err := scanArchive(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanArchive(row interface{ Scan(dest ...any) error }) (Archive, error) {
	var a Archive
	var status string
	var fileSize sql.NullInt64
	var pageCount sql.NullInt32
	var errMsg sql.NullString
	var generatedAt sql.NullTime
	if err := row.Scan(
		&a.ID,
		&a.ReportID,
		&a.Viewer,
		&a.Locale,
		&status,
		&a.FileName,
		&a.FilePath,
		&fileSize,
		&pageCount,
		&a.Digest,
		&errMsg,
		&generatedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return Archive{}, err
	}
	a.Status = Status(status)
	if fileSize.Valid {
		v := fileSize.Int64
		a.FileSize = &v
	}
	if pageCount.Valid {
		v := int(pageCount.Int32)
		a.PageCount = &v
	}
	if errMsg.Valid {
		a.ErrorMessage = errMsg.String
	}
	if generatedAt.Valid {
		t := generatedAt.Time
		a.GeneratedAt = &t
	}
	return a, nil
}

// truncateError caps msg at 500 bytes without splitting a rune.
func truncateError(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) <= 500 {
		return msg
	}
	cut := 500
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

var _ Store = (*Repository)(nil)

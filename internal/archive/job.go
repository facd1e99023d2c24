package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/resumail/resumail/internal/export"
	jobmetrics "github.com/resumail/resumail/internal/jobs"
	"github.com/resumail/resumail/internal/platform/httpx"
	"github.com/resumail/resumail/internal/report"
	"github.com/resumail/resumail/jobs"
)

// Exporter renders a report to a PDF file.
type Exporter interface {
	ExportToFile(ctx context.Context, req export.Request, dir string) (export.Artifact, string, error)
}

// ReportSource loads stored reports by identifier.
type ReportSource interface {
	StoredReport(ctx context.Context, id string) (report.Payload, error)
}

// Enqueuer submits archive generation tasks.
type Enqueuer interface {
	EnqueueArchive(ctx context.Context, archiveID string) (*asynq.TaskInfo, error)
}

// JobConfig wires dependencies required by the worker jobs.
type JobConfig struct {
	Service    *Service
	Exporter   Exporter
	Reports    ReportSource
	Queue      Enqueuer
	StorageDir string
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	// StallAfter overrides jobs.ArchiveStallAfter.
	StallAfter time.Duration
}

// Job processes archive generation requests coming from the queue.
type Job struct {
	service    *Service
	exporter   Exporter
	reports    ReportSource
	queue      Enqueuer
	storageDir string
	logger     *slog.Logger
	metrics    *jobmetrics.Metrics
	stallAfter time.Duration
}

// NewJob constructs a Job handler.
func NewJob(cfg JobConfig) *Job {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dir := strings.TrimSpace(cfg.StorageDir)
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "resumail", "archives")
	}
	stallAfter := cfg.StallAfter
	if stallAfter <= 0 {
		stallAfter = jobs.ArchiveStallAfter
	}
	return &Job{
		service:    cfg.Service,
		exporter:   cfg.Exporter,
		reports:    cfg.Reports,
		queue:      cfg.Queue,
		storageDir: dir,
		logger:     logger,
		metrics:    cfg.Metrics,
		stallAfter: stallAfter,
	}
}

// Handle fulfils the asynq.HandlerFunc contract for TaskArchiveGenerate.
func (j *Job) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.service == nil || j.exporter == nil || j.reports == nil {
		return errors.New("archive job not configured")
	}
	var payload jobs.ArchivePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("archive job: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	id, err := uuid.Parse(strings.TrimSpace(payload.ArchiveID))
	if err != nil {
		return fmt.Errorf("archive job: archive id %q: %w", payload.ArchiveID, asynq.SkipRetry)
	}

	tracker := j.metrics.Track(jobs.TaskArchiveGenerate)
	defer func() { err = tracker.End(err) }()
	logger := j.logger.With(slog.String("job", jobs.TaskArchiveGenerate), slog.String("archive_id", id.String()))

	arc, err := j.service.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrArchiveNotFound) {
			return fmt.Errorf("archive job: %w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	if arc.Status == StatusReady {
		return nil
	}
	if err := j.claim(ctx, logger, arc); err != nil {
		if errors.Is(err, errClaimedElsewhere) {
			return nil
		}
		return err
	}

	payloadReport, err := j.reports.StoredReport(ctx, arc.ReportID)
	if err != nil {
		j.fail(ctx, logger, id, err)
		if errors.Is(err, httpx.ErrNotFound) {
			return fmt.Errorf("archive job: %w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	art, path, err := j.exporter.ExportToFile(ctx, export.Request{
		Payload: payloadReport,
		Viewer:  arc.Viewer,
		Locale:  arc.Locale,
	}, filepath.Join(j.storageDir, id.String()))
	if err != nil {
		j.fail(ctx, logger, id, err)
		return err
	}

	ready, err := j.service.MarkReady(ctx, id, Result{
		FileName:    art.Filename,
		FilePath:    path,
		FileSize:    int64(len(art.Data)),
		PageCount:   art.Pages,
		Digest:      art.Digest,
		GeneratedAt: art.GeneratedAt,
	})
	if err != nil {
		return err
	}
	j.metrics.ObserveArtifact(jobs.TaskArchiveGenerate, int64(len(art.Data)))
	logger.Info("archive ready", slog.String("file", path), slog.Int("pages", art.Pages), slog.String("status", string(ready.Status)))
	return nil
}

var errClaimedElsewhere = errors.New("archive job: claimed by another run")

// claim moves arc to IN_PROGRESS. An archive another run holds is left alone
// unless that run has stalled past stallAfter, in which case it is reclaimed.
func (j *Job) claim(ctx context.Context, logger *slog.Logger, arc Archive) error {
	err := j.service.MarkInProgress(ctx, arc.ID)
	if !errors.Is(err, ErrInvalidStatus) {
		return err
	}
	current, err := j.service.Get(ctx, arc.ID)
	if err != nil {
		return err
	}
	if current.Status != StatusInProgress {
		return errClaimedElsewhere
	}
	if err := j.service.Reclaim(ctx, arc.ID, j.stallAfter); err != nil {
		if errors.Is(err, ErrInvalidStatus) {
			return errClaimedElsewhere
		}
		return err
	}
	logger.Warn("reclaimed stalled archive", slog.Time("last_update", current.UpdatedAt))
	if err := j.service.MarkInProgress(ctx, arc.ID); err != nil {
		if errors.Is(err, ErrInvalidStatus) {
			return errClaimedElsewhere
		}
		return err
	}
	return nil
}

func (j *Job) fail(ctx context.Context, logger *slog.Logger, id uuid.UUID, cause error) {
	msg := cause.Error()
	if stage := export.StageOf(cause); stage != "" {
		msg = string(stage) + ": " + msg
	}
	// the task context may already be cancelled; the failure must still land
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := j.service.MarkFailed(ctx, id, msg); err != nil {
		logger.Warn("mark archive failed", slog.Any("error", err))
	}
	logger.Error("archive generation failed", slog.Any("error", cause))
}

// HandleSweep fulfils the asynq.HandlerFunc contract for TaskArchiveSweep.
// It requeues archives that stayed PENDING, typically because the enqueue
// after creation was lost, and reclaims archives whose worker died while
// they were IN_PROGRESS.
func (j *Job) HandleSweep(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.service == nil || j.queue == nil {
		return errors.New("archive sweep not configured")
	}
	var payload jobs.ArchiveSweepPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("archive sweep: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	tracker := j.metrics.Track(jobs.TaskArchiveSweep)
	defer func() { err = tracker.End(err) }()

	stale, err := j.service.Stale(ctx, payload.OlderThan(), payload.Limit)
	if err != nil {
		return err
	}
	stalled, err := j.service.Stalled(ctx, payload.StalledAfter(), payload.Limit)
	if err != nil {
		return err
	}
	for _, arc := range stalled {
		if err := j.service.Reclaim(ctx, arc.ID, payload.StalledAfter()); err != nil {
			if !errors.Is(err, ErrInvalidStatus) {
				j.logger.Warn("reclaim archive", slog.String("archive_id", arc.ID.String()), slog.Any("error", err))
			}
			continue
		}
		stale = append(stale, arc)
	}
	requeued := 0
	for _, arc := range stale {
		if _, err := j.queue.EnqueueArchive(ctx, arc.ID.String()); err != nil {
			j.logger.Warn("requeue archive", slog.String("archive_id", arc.ID.String()), slog.Any("error", err))
			continue
		}
		requeued++
	}
	if requeued > 0 {
		j.logger.Info("requeued stale archives", slog.Int("count", requeued))
	}
	return nil
}

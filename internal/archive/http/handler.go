package archivehttp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/resumail/resumail/internal/archive"
	"github.com/resumail/resumail/internal/platform/httpx"
)

// Enqueuer submits archive generation tasks.
type Enqueuer interface {
	EnqueueArchive(ctx context.Context, archiveID string) (*asynq.TaskInfo, error)
}

// Handler wires HTTP endpoints for managing archives.
type Handler struct {
	logger    *slog.Logger
	service   *archive.Service
	jobs      Enqueuer
	validator *validator.Validate
}

// NewHandler constructs a Handler value. jobs may be nil, in which case
// archives stay PENDING until the sweep picks them up.
func NewHandler(logger *slog.Logger, service *archive.Service, jobs Enqueuer) *Handler {
	return &Handler{logger: logger, service: service, jobs: jobs, validator: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/archives", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.detail)
		r.Get("/{id}/download", h.download)
	})
}

type createInput struct {
	ReportID string `json:"report_id" validate:"required,max=128"`
	Viewer   string `json:"viewer" validate:"omitempty,max=320"`
	Locale   string `json:"locale" validate:"omitempty,max=16"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in createInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	arc, err := h.service.Create(r.Context(), archive.CreateRequest{ReportID: in.ReportID, Viewer: in.Viewer, Locale: in.Locale})
	if err != nil {
		h.logger.Warn("create archive", slog.String("report_id", in.ReportID), slog.Any("error", err))
		httpx.RespondError(w, err, "could not create archive")
		return
	}
	if h.jobs != nil {
		if _, err := h.jobs.EnqueueArchive(r.Context(), arc.ID.String()); err != nil {
			h.logger.Warn("enqueue archive", slog.String("archive_id", arc.ID.String()), slog.Any("error", err))
		}
	}
	w.Header().Set("Location", "/archives/"+arc.ID.String())
	httpx.JSON(w, http.StatusAccepted, arc)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	reportID := strings.TrimSpace(r.URL.Query().Get("report_id"))
	if reportID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "report_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	archives, err := h.service.ListByReport(r.Context(), reportID, limit)
	if err != nil {
		h.logger.Error("list archives", slog.Any("error", err))
		httpx.RespondError(w, err, "could not list archives")
		return
	}
	if archives == nil {
		archives = []archive.Archive{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"archives": archives})
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	arc, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, arc)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	arc, ok := h.load(w, r)
	if !ok {
		return
	}
	if !arc.Downloadable() {
		httpx.RespondError(w, archive.ErrNotReady, "")
		return
	}
	file, err := os.Open(arc.FilePath)
	if err != nil {
		h.logger.Error("open archive file", slog.String("archive_id", arc.ID.String()), slog.Any("error", err))
		if errors.Is(err, os.ErrNotExist) {
			httpx.Problem(w, http.StatusGone, "Gone", "archive file is no longer available")
			return
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	defer func() { _ = file.Close() }()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+arc.FileName+"\"")
	if arc.FileSize != nil {
		w.Header().Set("Content-Length", strconv.FormatInt(*arc.FileSize, 10))
	}
	if arc.Digest != "" {
		w.Header().Set("ETag", `"`+arc.Digest+`"`)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, file); err != nil {
		h.logger.Warn("stream archive", slog.String("archive_id", arc.ID.String()), slog.Any("error", err))
	}
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (archive.Archive, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown archive")
		return archive.Archive{}, false
	}
	arc, err := h.service.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, archive.ErrArchiveNotFound) {
			h.logger.Error("load archive", slog.String("archive_id", id.String()), slog.Any("error", err))
		}
		httpx.RespondError(w, err, "could not load archive")
		return archive.Archive{}, false
	}
	return arc, true
}

package exporthttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/resumail/resumail/internal/export"
	"github.com/resumail/resumail/internal/platform/httpx"
	"github.com/resumail/resumail/internal/report"
)

// ReportSource loads stored reports by identifier.
type ReportSource interface {
	StoredReport(ctx context.Context, id string) (report.Payload, error)
}

// Handler exposes the export pipeline over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *export.Service
	reports   ReportSource
	validator *validator.Validate
}

// NewHandler constructs a Handler. reports may be nil, in which case the
// stored report route is not mounted.
func NewHandler(logger *slog.Logger, service *export.Service, reports ReportSource) *Handler {
	return &Handler{logger: logger, service: service, reports: reports, validator: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/exports", func(r chi.Router) {
		r.Post("/pdf", h.exportPDF)
		r.Post("/html", h.exportHTML)
	})
	if h.reports != nil {
		r.Get("/reports/{id}/pdf", h.storedPDF)
	}
}

type exportRequest struct {
	Report report.Payload `json:"report" validate:"required"`
	Viewer string         `json:"viewer" validate:"omitempty,max=320"`
	Locale string         `json:"locale" validate:"omitempty,max=16"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (export.Request, bool) {
	var body exportRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return export.Request{}, false
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.ValidationProblem(w, err)
		return export.Request{}, false
	}
	return export.Request{Payload: body.Report, Viewer: body.Viewer, Locale: body.Locale}, true
}

func (h *Handler) exportPDF(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	h.run(w, r, req)
}

func (h *Handler) exportHTML(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	markup, err := h.service.Preview(req)
	if err != nil {
		h.logger.Error("render report preview", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Export Failed", export.Notice)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(markup))
}

func (h *Handler) storedPDF(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	payload, err := h.reports.StoredReport(r.Context(), id)
	if err != nil {
		h.logger.Warn("load stored report", slog.String("report_id", id), slog.Any("error", err))
		httpx.RespondError(w, err, "could not load report")
		return
	}
	query := r.URL.Query()
	h.run(w, r, export.Request{Payload: payload, Viewer: query.Get("viewer"), Locale: query.Get("locale")})
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, req export.Request) {
	art, err := h.service.Export(r.Context(), req)
	if err != nil {
		if errors.Is(err, export.ErrBusy) {
			httpx.Problem(w, http.StatusConflict, "Export In Progress", err.Error())
			return
		}
		httpx.Problem(w, http.StatusInternalServerError, "Export Failed", export.Notice)
		return
	}
	etag := `"` + art.Digest + `"`
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+art.Filename+"\"")
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.Header().Set("ETag", etag)
	w.Header().Set("X-Report-Pages", strconv.Itoa(art.Pages))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Data)
}

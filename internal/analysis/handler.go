package analysis

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/resumail/resumail/internal/backend"
	"github.com/resumail/resumail/internal/platform/httpx"
)

// Handler exposes analyses over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/analyses", h.create)
}

type emailInput struct {
	ID      string `json:"id" validate:"required"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Date    string `json:"date"`
}

type analyzeInput struct {
	UserID string       `json:"user_id" validate:"required"`
	Emails []emailInput `json:"emails" validate:"required,min=1,max=500,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in analyzeInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	emails := make([]backend.Email, len(in.Emails))
	for i, e := range in.Emails {
		emails[i] = backend.Email{ID: e.ID, From: e.From, Subject: e.Subject, Body: e.Body, Date: e.Date}
	}
	result, err := h.service.Analyze(r.Context(), in.UserID, emails)
	if err != nil {
		h.logger.Warn("analyze emails", slog.String("user_id", in.UserID), slog.Any("error", err))
		httpx.RespondError(w, err, "analysis failed")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

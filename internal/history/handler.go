package history

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/resumail/resumail/internal/platform/httpx"
)

// Handler exposes report history and dashboard stats over HTTP.
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
	r.Get("/reports", h.list)
	r.Get("/reports/stats", h.stats)
}

type userQuery struct {
	User string `validate:"required,max=128"`
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	q := userQuery{User: r.URL.Query().Get("user")}
	if err := h.validator.Struct(q); err != nil {
		httpx.ValidationProblem(w, err)
		return "", false
	}
	return q.User, true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	entries, err := h.service.History(r.Context(), user)
	if err != nil {
		h.logger.Warn("report history", slog.String("user_id", user), slog.Any("error", err))
		httpx.RespondError(w, err, "could not load report history")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reports": entries})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	stats, err := h.service.Stats(r.Context(), user)
	if err != nil {
		h.logger.Warn("report stats", slog.String("user_id", user), slog.Any("error", err))
		httpx.RespondError(w, err, "could not load report stats")
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

package app

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/resumail/resumail/internal/analysis"
	archivehttp "github.com/resumail/resumail/internal/archive/http"
	exporthttp "github.com/resumail/resumail/internal/export/http"
	"github.com/resumail/resumail/internal/history"
	"github.com/resumail/resumail/internal/observability"
	"github.com/resumail/resumail/internal/platform/httpx"
	"github.com/resumail/resumail/jobs"
	"github.com/resumail/resumail/web"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	ExportHandler   *exporthttp.Handler
	AnalysisHandler *analysis.Handler
	HistoryHandler  *history.Handler
	ArchiveHandler  *archivehttp.Handler
	JobHandler      *jobs.Handler

	// HealthChecks run on /readyz, keyed by dependency name.
	HealthChecks map[string]HealthCheck
}

// NewRouter constructs the chi.Router with Resumail defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(params.Logger, params.HealthChecks))

	if params.ExportHandler != nil {
		params.ExportHandler.MountRoutes(r)
	}
	if params.AnalysisHandler != nil {
		params.AnalysisHandler.MountRoutes(r)
	}
	if params.HistoryHandler != nil {
		params.HistoryHandler.MountRoutes(r)
	}
	if params.ArchiveHandler != nil {
		params.ArchiveHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

func readiness(logger *slog.Logger, healthChecks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(healthChecks))
		for name, check := range healthChecks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				logger.Warn("readiness check failed", slog.String("dependency", name), slog.Any("error", err))
				checks[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		httpx.JSON(w, status, map[string]any{"ready": status == http.StatusOK, "checks": checks})
	}
}

// staticCacheHandler caches the report stylesheet for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}

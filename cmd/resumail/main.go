package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/resumail/resumail/internal/analysis"
	"github.com/resumail/resumail/internal/app"
	"github.com/resumail/resumail/internal/archive"
	archivehttp "github.com/resumail/resumail/internal/archive/http"
	exporthttp "github.com/resumail/resumail/internal/export/http"
	"github.com/resumail/resumail/internal/history"
	jobmetrics "github.com/resumail/resumail/internal/jobs"
	"github.com/resumail/resumail/internal/observability"
	"github.com/resumail/resumail/internal/platform/cache"
	"github.com/resumail/resumail/jobs"
)

func main() {
	if app.SkipRuntime("resumail") {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, "resumail")

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("resumail stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()
	deps, err := app.Open(ctx, cfg, logger, metrics.Registerer())
	if err != nil {
		return err
	}
	defer deps.Close()

	var (
		enqueuer  archivehttp.Enqueuer
		inspector *asynq.Inspector
		worker    *jobs.Worker
	)
	if deps.Redis != nil {
		queueOpts := cache.QueueOpts(cfg.RedisAddr)
		client, err := jobs.NewClient(queueOpts)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("queue client close", slog.Any("error", err))
			}
		}()
		enqueuer = client

		inspector = asynq.NewInspector(queueOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()

		// in-memory archives are invisible to a separate worker process
		if !deps.SharedStore {
			job := archive.NewJob(archive.JobConfig{
				Service:    deps.Archives,
				Exporter:   deps.Export,
				Reports:    deps.Backend,
				Queue:      client,
				StorageDir: cfg.ArchiveStorageDir,
				Logger:     logger,
				Metrics:    jobmetrics.NewMetrics(metrics.Registerer()),
			})
			worker, err = jobs.NewWorker(jobs.WorkerConfig{
				RedisOpts:   queueOpts,
				Logger:      logger,
				Concurrency: cfg.WorkerConcurrency,
				Handlers: []jobs.TaskHandler{
					{Type: jobs.TaskArchiveGenerate, Handler: job.Handle},
				},
			})
			if err != nil {
				return err
			}
			logger.Info("running archive jobs in-process")
		}
	}

	analysisService := analysis.NewService(deps.Backend, cfg.CreditsPerEmail, logger)
	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Metrics:         metrics,
		ExportHandler:   exporthttp.NewHandler(logger, deps.Export, deps.Backend),
		AnalysisHandler: analysis.NewHandler(logger, analysisService),
		HistoryHandler:  history.NewHandler(logger, history.NewService(deps.Backend, logger)),
		ArchiveHandler:  archivehttp.NewHandler(logger, deps.Archives, enqueuer),
		JobHandler:      jobs.NewHandler(inspector, logger),
		HealthChecks:    deps.HealthChecks(),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if worker != nil {
		g.Go(func() error {
			return worker.Run(gctx)
		})
	}
	return g.Wait()
}

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

	"github.com/resumail/resumail/internal/app"
	"github.com/resumail/resumail/internal/archive"
	jobmetrics "github.com/resumail/resumail/internal/jobs"
	"github.com/resumail/resumail/internal/observability"
	"github.com/resumail/resumail/internal/platform/cache"
	"github.com/resumail/resumail/jobs"
)

func main() {
	if app.SkipRuntime("worker") {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, "worker")

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
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
	if deps.Redis == nil {
		return errors.New("worker: redis is required")
	}
	if !deps.SharedStore {
		logger.Warn("worker without PG_DSN only sees archives it creates itself")
	}

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

	job := archive.NewJob(archive.JobConfig{
		Service:    deps.Archives,
		Exporter:   deps.Export,
		Reports:    deps.Backend,
		Queue:      client,
		StorageDir: cfg.ArchiveStorageDir,
		Logger:     logger,
		Metrics:    jobmetrics.NewMetrics(metrics.Registerer()),
	})

	sweepTask, err := jobs.NewArchiveSweepTask(10*time.Minute, 100)
	if err != nil {
		return err
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   queueOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskArchiveGenerate, Handler: job.Handle},
			{Type: jobs.TaskArchiveSweep, Handler: job.HandleSweep},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/5 * * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(0), asynq.Unique(4 * time.Minute)}},
		},
	})
	if err != nil {
		return err
	}

	// metrics for the worker are scraped from a side listener
	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	if cfg.WorkerMetricsAddr != "" {
		g.Go(func() error {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

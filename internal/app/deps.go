package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/resumail/resumail/internal/archive"
	"github.com/resumail/resumail/internal/backend"
	"github.com/resumail/resumail/internal/export"
	"github.com/resumail/resumail/internal/pdf"
	"github.com/resumail/resumail/internal/platform/cache"
	"github.com/resumail/resumail/internal/platform/db"
	"github.com/resumail/resumail/internal/raster"
	"github.com/resumail/resumail/internal/render"
	"github.com/resumail/resumail/migrations"
)

// Deps holds the shared infrastructure of the server and worker binaries.
type Deps struct {
	Redis    *redis.Client
	Pool     *pgxpool.Pool
	Archives *archive.Service
	Backend  *backend.Client
	Export   *export.Service

	// SharedStore is false when archives live in this process only.
	SharedStore bool

	closers []func()
}

// Open connects to Redis and Postgres, applies migrations and builds the
// export pipeline. Redis and Postgres are optional: without Redis the backend
// cache and busy guard stay in memory, without PG_DSN archives are kept in
// memory.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger, registerer prometheus.Registerer) (*Deps, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	d := &Deps{}

	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, continuing without cache and queue", slog.Any("error", err))
	} else {
		d.Redis = client
		d.closers = append(d.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})
	}

	var store archive.Store
	if strings.TrimSpace(cfg.PGDSN) == "" {
		logger.Warn("PG_DSN not set, archives are kept in memory")
		store = archive.NewMemoryStore()
	} else {
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Pool = pool
		d.closers = append(d.closers, pool.Close)
		applied, err := db.Migrate(ctx, pool, migrations.FS)
		if err != nil {
			d.Close()
			return nil, err
		}
		if len(applied) > 0 {
			logger.Info("applied migrations", slog.Any("versions", applied))
		}
		store = archive.NewRepository(pool)
		d.SharedStore = true
	}
	d.Archives = archive.NewService(store)

	d.Backend = backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, backend.NewCache(d.Redis, cfg.ReportCacheTTL))

	rcfg := cfg.RasterConfig()
	rcfg.Logger = logger
	rasterizer, closeRaster, err := raster.New(ctx, rcfg)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.closers = append(d.closers, closeRaster)

	var guard export.Guard = export.NewMemoryGuard()
	if strings.EqualFold(cfg.ExportGuard, "redis") {
		if d.Redis != nil {
			guard = export.NewRedisGuard(d.Redis, cfg.ExportGuardTTL)
		} else {
			logger.Warn("EXPORT_GUARD=redis without redis, using the in-memory guard")
		}
	}

	d.Export = export.NewService(export.Config{
		Rasterizer: rasterizer,
		Assembler:  pdf.NewAssembler(render.Brand, ""),
		Guard:      guard,
		Metrics:    export.NewMetrics(registerer),
		Logger:     logger,
		Locale:     cfg.ReportLocale,
		Location:   cfg.Location(),
		Options:    cfg.RasterOptions(),
	})
	return d, nil
}

// HealthChecks returns readiness checks for the connected dependencies.
func (d *Deps) HealthChecks() map[string]HealthCheck {
	checks := map[string]HealthCheck{"backend": d.Backend.Ping}
	if d.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() }
	}
	if d.Pool != nil {
		checks["postgres"] = d.Pool.Ping
	}
	return checks
}

// Close releases everything Open acquired, in reverse order.
func (d *Deps) Close() {
	if d == nil {
		return
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

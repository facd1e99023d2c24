package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumail/resumail/internal/archive"
	"github.com/resumail/resumail/internal/export"
	"github.com/resumail/resumail/internal/report"
)

func TestOpenWithoutPostgres(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := validConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.ExportGuard = "redis"
	cfg.BackendURL = "http://127.0.0.1:1"

	deps, err := Open(context.Background(), &cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(deps.Close)

	assert.NotNil(t, deps.Redis)
	assert.Nil(t, deps.Pool)
	assert.False(t, deps.SharedStore)

	healthChecks := deps.HealthChecks()
	assert.Contains(t, healthChecks, "redis")
	assert.Contains(t, healthChecks, "backend")
	assert.NotContains(t, healthChecks, "postgres")
	assert.NoError(t, healthChecks["redis"](context.Background()))

	arc, err := deps.Archives.Create(context.Background(), archive.CreateRequest{ReportID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, archive.StatusPending, arc.Status)

	art, err := deps.Export.Export(context.Background(), export.Request{Payload: report.Payload{"report_text": "ok"}, Viewer: "v"})
	require.NoError(t, err)
	assert.Equal(t, 1, art.Pages)
	assert.False(t, mr.Exists("resumail:export:lock:v"), "busy lock is released after the export")
}

func TestOpenToleratesMissingRedis(t *testing.T) {
	cfg := validConfig()
	cfg.RedisAddr = "127.0.0.1:1"
	cfg.ExportGuard = "redis"

	deps, err := Open(context.Background(), &cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(deps.Close)

	assert.Nil(t, deps.Redis)
	assert.NotContains(t, deps.HealthChecks(), "redis")
}

func TestOpenRejectsUnknownEngine(t *testing.T) {
	cfg := validConfig()
	cfg.RasterEngine = "wkhtml"
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := Open(context.Background(), &cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	assert.Error(t, err)
}

package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumail/resumail/internal/app"
)

const scenario = `{
  "report_text": "Great quarter",
  "classification": {"positive": 8, "neutral": 1, "negative": 1, "other": 0},
  "highlights": ["fast shipping"],
  "mini_reports": [{"title": "Batch 1", "text": "ok"}]
}`

func testConfig() *app.Config {
	return &app.Config{
		RasterEngine:   "layout",
		ExportGuard:    "memory",
		RasterScale:    2.5,
		RasterWidthPx:  794,
		ReportLocale:   "en",
		ReportTimezone: "UTC",
		RedisAddr:      "127.0.0.1:1",
	}
}

func execute(t *testing.T, cfg *app.Config, stdin string, args ...string) (int, string, string) {
	t.Helper()
	root := NewRootCmd(cfg)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(stdout)
	root.SetErr(stderr)
	code := 0
	if err := root.ExecuteContext(context.Background()); err != nil {
		stderr.WriteString(err.Error())
		code = 1
	}
	return code, stdout.String(), stderr.String()
}

func TestExportCommandWritesPDF(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "payload.json")
	require.NoError(t, os.WriteFile(in, []byte(scenario), 0o644))

	code, stdout, stderr := execute(t, testConfig(), "", "export", "--in", in, "--out", dir, "--viewer", "user@example.com")
	require.Equal(t, 0, code, stderr)

	name := "Resumail_Report_" + time.Now().UTC().Format("2006-01-02") + ".pdf"
	assert.Contains(t, stdout, filepath.Join(dir, name))
	assert.Contains(t, stdout, "1 page(s)")
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestExportCommandRejectsUnknownEngine(t *testing.T) {
	code, _, stderr := execute(t, testConfig(), scenario, "export", "--out", t.TempDir(), "--engine", "wkhtml")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown engine")
}

func TestRenderCommandReadsStdin(t *testing.T) {
	code, stdout, stderr := execute(t, testConfig(), scenario, "render", "--viewer", "<me>")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Batch 1")
	assert.Contains(t, stdout, "&lt;me&gt;")
}

func TestRenderCommandRejectsBrokenJSON(t *testing.T) {
	code, _, stderr := execute(t, testConfig(), "{", "render")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "decode payload")
}

func TestArchiveCommandsNeedDSN(t *testing.T) {
	code, _, stderr := execute(t, testConfig(), "", "archive", "get", uuid.NewString())
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "PG_DSN")

	code, _, _ = execute(t, testConfig(), "", "archive", "get", "not-a-uuid")
	assert.Equal(t, 1, code)
}

func TestMigrateListsBundledMigrations(t *testing.T) {
	code, stdout, stderr := execute(t, testConfig(), "", "migrate", "--list")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "0001_report_archives.sql")
}

func TestQueueCommandsAgainstRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	id := uuid.NewString()

	code, stdout, stderr := execute(t, cfg, "", "--redis", mr.Addr(), "archive", "enqueue", id)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "archive:generate:"+id)

	code, stdout, _ = execute(t, cfg, "", "--redis", mr.Addr(), "archive", "enqueue", id)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "already queued")

	code, stdout, stderr = execute(t, cfg, "", "--redis", mr.Addr(), "queue", "sweep", "--older-than", "1m")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "queued")
}

func TestExecuteReportsExitCode(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 1, Execute(context.Background(), testConfig(), []string{"archive", "get"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "Error:")
}

func TestHistoryCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/reports/user/u1":
			_, _ = w.Write([]byte(`[{"id":"abcdef123","created_at":"2025-03-02T08:30:00Z","total_emails":12345}]`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"down"}`))
		}
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	code, stdout, stderr := execute(t, cfg, "", "history", "--backend", srv.URL, "--user", "u1")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "abcdef")
	assert.Contains(t, stdout, "12,345")
	assert.Contains(t, stdout, "/reports/abcdef123/pdf")

	code, stdout, stderr = execute(t, cfg, "", "history", "--backend", srv.URL, "--user", "u1", "--stats")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "source\tcomputed")
	assert.Contains(t, stdout, "2025-03-02\t12,345")

	code, _, stderr = execute(t, cfg, "", "history", "--backend", srv.URL)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "--user")
}

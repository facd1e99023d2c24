package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/resumail/resumail/internal/raster"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"90s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"75s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`

	// PGDSN is optional; archives are kept in memory without it.
	PGDSN      string `envconfig:"PG_DSN"`
	PGMaxConns int32  `envconfig:"PG_MAX_CONNS" default:"8"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	BackendURL     string        `envconfig:"BACKEND_URL" default:"http://127.0.0.1:3000"`
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"30s"`
	ReportCacheTTL time.Duration `envconfig:"REPORT_CACHE_TTL" default:"5m"`

	RasterEngine   string        `envconfig:"RASTER_ENGINE" default:"layout"`
	ChromeWSURL    string        `envconfig:"CHROME_WS_URL"`
	ChromePath     string        `envconfig:"CHROME_PATH"`
	RasterTimeout  time.Duration `envconfig:"RASTER_TIMEOUT" default:"60s"`
	RasterWidthPx  int           `envconfig:"RASTER_WIDTH_PX" default:"794"`
	RasterScale    float64       `envconfig:"RASTER_SCALE" default:"2.5"`
	RasterMaxPages int           `envconfig:"RASTER_MAX_PAGES" default:"10"`

	ReportLocale   string `envconfig:"REPORT_LOCALE" default:"en"`
	ReportTimezone string `envconfig:"REPORT_TIMEZONE" default:"UTC"`

	ArchiveStorageDir string `envconfig:"ARCHIVE_STORAGE_DIR" default:"var/archives"`
	CreditsPerEmail   int    `envconfig:"CREDITS_PER_EMAIL" default:"1"`

	ExportGuard    string        `envconfig:"EXPORT_GUARD" default:"memory"`
	ExportGuardTTL time.Duration `envconfig:"EXPORT_GUARD_TTL" default:"2m"`

	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"2"`
	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config missing")
	}
	switch strings.ToLower(c.RasterEngine) {
	case raster.EngineLayout, raster.EngineChrome:
	default:
		return fmt.Errorf("RASTER_ENGINE must be %q or %q, got %q", raster.EngineLayout, raster.EngineChrome, c.RasterEngine)
	}
	switch strings.ToLower(c.ExportGuard) {
	case "memory", "redis":
	default:
		return fmt.Errorf("EXPORT_GUARD must be \"memory\" or \"redis\", got %q", c.ExportGuard)
	}
	if c.RasterScale < raster.MinScale {
		return fmt.Errorf("RASTER_SCALE must be at least %v", raster.MinScale)
	}
	if c.RasterWidthPx <= 0 {
		return errors.New("RASTER_WIDTH_PX must be positive")
	}
	if c.RasterMaxPages <= 0 {
		return errors.New("RASTER_MAX_PAGES must be positive")
	}
	if c.CreditsPerEmail < 0 {
		return errors.New("CREDITS_PER_EMAIL must not be negative")
	}
	if _, err := time.LoadLocation(c.ReportTimezone); err != nil {
		return fmt.Errorf("REPORT_TIMEZONE: %w", err)
	}
	return nil
}

// Location resolves ReportTimezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RasterOptions returns the capture geometry.
func (c *Config) RasterOptions() raster.Options {
	return raster.Options{WidthPx: c.RasterWidthPx, Scale: c.RasterScale, MaxPages: c.RasterMaxPages}
}

// RasterConfig returns the engine selection for raster.New.
func (c *Config) RasterConfig() raster.Config {
	return raster.Config{
		Engine:   c.RasterEngine,
		WSURL:    c.ChromeWSURL,
		ExecPath: c.ChromePath,
		Timeout:  c.RasterTimeout,
	}
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

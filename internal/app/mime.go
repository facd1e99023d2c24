package app

import (
	"log/slog"
	"mime"
)

// staticTypes covers extensions served from web/static and the archive
// download route that minimal containers may not know about.
var staticTypes = map[string]string{
	".css": "text/css; charset=utf-8",
	".pdf": "application/pdf",
	".svg": "image/svg+xml",
}

func init() {
	for ext, typ := range staticTypes {
		if mime.TypeByExtension(ext) != "" {
			continue
		}
		if err := mime.AddExtensionType(ext, typ); err != nil {
			slog.Warn("register mime type", slog.String("ext", ext), slog.Any("error", err))
		}
	}
}

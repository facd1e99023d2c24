package web

import "embed"

// Templates embeds the report markup templates.
//
//go:embed templates/**/*.html
var Templates embed.FS

// Static embeds the report stylesheet.
//
//go:embed static/**/*
var Static embed.FS

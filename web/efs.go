// Package web holds the browser shell served at /.
package web

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed static/*
var staticFS embed.FS

// GetFileSystem returns the static files to serve.
func GetFileSystem() (fs.FS, error) {
	// 1. Dev mode: Serve from disk
	if dir := os.Getenv("FRONTEND_DIR"); dir != "" {
		return os.DirFS(dir), nil
	}

	// 2. Production mode: Serve embedded files
	return fs.Sub(staticFS, "static")
}

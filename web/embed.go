// Package web serves the site frontend as a single-page application: the
// build embedded from dist/, or a directory on disk when one is configured.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// Embedded returns the embedded frontend build.
func Embedded() fs.FS {
	sub, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return sub
}

// Handler serves the frontend from staticDir, or from the embedded build
// when staticDir is empty.
func Handler(staticDir string) (http.Handler, error) {
	if staticDir == "" {
		return SPAHandler(Embedded()), nil
	}
	info, err := os.Stat(staticDir)
	if err != nil {
		return nil, fmt.Errorf("static dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("static dir %s is not a directory", staticDir)
	}
	return SPAHandler(os.DirFS(staticDir)), nil
}

// SPAHandler serves files from fsys and falls back to index.html for any
// path that doesn't match a file (client-side routing). Fingerprinted
// assets under assets/ are cached for a year.
func SPAHandler(fsys fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "index.html"
		}

		if f, err := fsys.Open(name); err == nil {
			stat, statErr := f.Stat()
			if closeErr := f.Close(); closeErr != nil {
				slog.Debug("web: failed to close file", "path", name, "error", closeErr)
			}
			if statErr == nil && !stat.IsDir() {
				if strings.HasPrefix(name, "assets/") {
					w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
				}
				fileServer.ServeHTTP(w, r)
				return
			}
		}

		// Not found: serve index.html for SPA routing.
		w.Header().Set("Cache-Control", "no-cache")
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}

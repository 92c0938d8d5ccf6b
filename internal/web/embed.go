// Package web serves the frontend bundle when it has been built into the binary.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
)

//go:embed dist/*
var staticFiles embed.FS

// IndexFile is the single-page application entry point.
const IndexFile = "index.html"

// GetFileSystem returns the embedded filesystem with the dist folder as root.
func GetFileSystem() (fs.FS, error) {
	return fs.Sub(staticFiles, "dist")
}

// HasEmbeddedFiles returns true if the frontend has been built and embedded.
func HasEmbeddedFiles() bool {
	return hasIndex(staticFiles, "dist")
}

func hasIndex(fsys fs.FS, dir string) bool {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.Name() == IndexFile {
			return true
		}
	}
	return false
}

// RegisterStaticRoutes serves the embedded bundle for every non-API route.
// API routes must be registered first.
func RegisterStaticRoutes(e *echo.Echo) error {
	staticFS, err := GetFileSystem()
	if err != nil {
		return err
	}
	e.GET("/*", spaHandler(staticFS))
	return nil
}

// spaHandler serves files from fsys and falls back to the index page so
// client-side routes such as /dashboard and /results/:token resolve.
func spaHandler(fsys fs.FS) echo.HandlerFunc {
	fileServer := http.FileServer(http.FS(fsys))

	return func(c echo.Context) error {
		requestPath := path.Clean(c.Request().URL.Path)
		if strings.HasPrefix(requestPath, "/api/") {
			return echo.ErrNotFound
		}

		name := strings.TrimPrefix(requestPath, "/")
		if name == "" || name == "." {
			return serveIndexHTML(c, fsys)
		}

		stat, err := fs.Stat(fsys, name)
		if err != nil || stat.IsDir() {
			return serveIndexHTML(c, fsys)
		}

		if strings.HasPrefix(name, "assets/") {
			c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		}
		fileServer.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

// serveIndexHTML serves the main index.html for SPA routing
func serveIndexHTML(c echo.Context, fsys fs.FS) error {
	content, err := fs.ReadFile(fsys, IndexFile)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "index.html not found")
	}
	c.Response().Header().Set("Cache-Control", "no-cache")
	return c.HTMLBlob(http.StatusOK, content)
}

// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pdf-extractor/backend/internal/preview"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	sessions SessionRegistry
	previews *preview.Manager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, sessions SessionRegistry, previews *preview.Manager) HealthHandler {
	return &HealthHandlerImpl{
		version:  version,
		sessions: sessions,
		previews: previews,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.sessions != nil {
		resp["sessions"] = h.sessions.Count()
	}
	if h.previews != nil {
		resp["previewHandles"] = h.previews.Live()
	}
	return c.JSON(http.StatusOK, resp)
}

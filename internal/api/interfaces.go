// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/pdf-extractor/backend/internal/session"
)

// SessionHandler handles authoring session lifecycle
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleDiscardSession(c echo.Context) error
}

// DocumentHandler handles the document set of a session
type DocumentHandler interface {
	HandleUploadFiles(c echo.Context) error
	HandleAddLink(c echo.Context) error
	HandleRemoveDocument(c echo.Context) error
}

// PreviewHandler handles the preview surface and handle content
type PreviewHandler interface {
	HandleOpenPreview(c echo.Context) error
	HandleGetPreview(c echo.Context) error
	HandleClosePreview(c echo.Context) error
	HandleZoom(c echo.Context) error
	HandlePreviewContent(c echo.Context) error
}

// QueryHandler handles query editing and submission
type QueryHandler interface {
	HandleSetQuery(c echo.Context) error
	HandleSubmit(c echo.Context) error
	HandleGetSubmission(c echo.Context) error
	HandleResetSubmission(c echo.Context) error
}

// ResultsHandler handles the results view of a hand-off
type ResultsHandler interface {
	HandleGetResults(c echo.Context) error
	HandleGetTable(c echo.Context) error
	HandleGetJSON(c echo.Context) error
	HandleExportCSV(c echo.Context) error
	HandleExportXLSX(c echo.Context) error
	HandleGetMsgpack(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// EventsHandler streams submission transitions
type EventsHandler interface {
	HandleEvents(c echo.Context) error
}

// SessionRegistry defines the session operations handlers need.
// This allows mocking in tests
type SessionRegistry interface {
	Create() *session.Session
	Get(id string) (*session.Session, bool)
	Discard(id string) bool
	Count() int
}

// routes.go - Route registration helpers
package api

import (
	"github.com/hashicorp/go-hclog"
	"github.com/labstack/echo/v4"

	"github.com/pdf-extractor/backend/internal/handoff"
	"github.com/pdf-extractor/backend/internal/preview"
	"github.com/pdf-extractor/backend/internal/results"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Sessions SessionRegistry
	Previews *preview.Manager
	Handoffs handoff.Store
	Results  results.Store
	Version  string
	Logger   hclog.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Sessions  SessionHandler
	Documents DocumentHandler
	Preview   PreviewHandler
	Query     QueryHandler
	Results   ResultsHandler
	Events    EventsHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	sessions := NewSessionHandler(deps.Sessions)
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Sessions, deps.Previews),
		Sessions:  sessions,
		Documents: sessions,
		Preview:   NewPreviewHandler(deps.Sessions, deps.Previews),
		Query:     NewQueryHandler(deps.Sessions),
		Results:   NewResultsHandler(deps.Handoffs, deps.Results),
		Events:    NewEventsHandler(deps.Sessions, logger.Named("events")),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Authoring sessions
	sessionGroup := apiGroup.Group("/sessions")
	sessionGroup.POST("", handlers.Sessions.HandleCreateSession)
	sessionGroup.GET("/:id", handlers.Sessions.HandleGetSession)
	sessionGroup.DELETE("/:id", handlers.Sessions.HandleDiscardSession)

	// Document set
	sessionGroup.POST("/:id/files", handlers.Documents.HandleUploadFiles)
	sessionGroup.POST("/:id/links", handlers.Documents.HandleAddLink)
	sessionGroup.DELETE("/:id/documents/:docId", handlers.Documents.HandleRemoveDocument)

	// Preview surface
	sessionGroup.POST("/:id/preview", handlers.Preview.HandleOpenPreview)
	sessionGroup.GET("/:id/preview", handlers.Preview.HandleGetPreview)
	sessionGroup.DELETE("/:id/preview", handlers.Preview.HandleClosePreview)
	sessionGroup.POST("/:id/preview/zoom", handlers.Preview.HandleZoom)
	apiGroup.GET("/preview/:handleId", handlers.Preview.HandlePreviewContent)

	// Query submission
	sessionGroup.PUT("/:id/query", handlers.Query.HandleSetQuery)
	sessionGroup.POST("/:id/submit", handlers.Query.HandleSubmit)
	sessionGroup.GET("/:id/submission", handlers.Query.HandleGetSubmission)
	sessionGroup.DELETE("/:id/submission", handlers.Query.HandleResetSubmission)
	sessionGroup.GET("/:id/events", handlers.Events.HandleEvents)

	// Results view
	resultsGroup := apiGroup.Group("/results/:token")
	resultsGroup.GET("", handlers.Results.HandleGetResults)
	resultsGroup.GET("/table", handlers.Results.HandleGetTable)
	resultsGroup.GET("/json", handlers.Results.HandleGetJSON)
	resultsGroup.GET("/export.csv", handlers.Results.HandleExportCSV)
	resultsGroup.GET("/export.xlsx", handlers.Results.HandleExportXLSX)
	resultsGroup.GET("/msgpack", handlers.Results.HandleGetMsgpack)
}

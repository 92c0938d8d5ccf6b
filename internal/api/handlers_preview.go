// handlers_preview.go - Preview surface and handle content handlers
package api

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/labstack/echo/v4"

	"github.com/pdf-extractor/backend/internal/preview"
)

// Zoom actions accepted by HandleZoom.
const (
	ZoomActionIn  = "in"
	ZoomActionOut = "out"
	ZoomActionFit = "fit"
)

// PreviewHandlerImpl implements the PreviewHandler interface
type PreviewHandlerImpl struct {
	sessions SessionRegistry
	previews *preview.Manager
}

// NewPreviewHandler creates a new preview handler instance
func NewPreviewHandler(sessions SessionRegistry, previews *preview.Manager) *PreviewHandlerImpl {
	return &PreviewHandlerImpl{sessions: sessions, previews: previews}
}

// HandleOpenPreview shows a document on the session's preview surface. The
// response carries the final state: ready, or error with an escape URL.
func (h *PreviewHandlerImpl) HandleOpenPreview(c echo.Context) error {
	sess, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	var req openPreviewRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.Validate(); err != nil {
		return NewValidationError("documentId", err)
	}

	doc, ok := sess.Uploads.Get(req.DocumentID)
	if !ok {
		return NewNotFoundError("document", req.DocumentID)
	}

	view := sess.Preview.Open(c.Request().Context(), doc)
	return c.JSON(http.StatusOK, view)
}

// HandleGetPreview returns the current preview state
func (h *PreviewHandlerImpl) HandleGetPreview(c echo.Context) error {
	sess, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.Preview.View())
}

// HandleClosePreview dismisses the preview and releases its handle
func (h *PreviewHandlerImpl) HandleClosePreview(c echo.Context) error {
	sess, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.Preview.Close())
}

// HandleZoom steps the preview zoom level
func (h *PreviewHandlerImpl) HandleZoom(c echo.Context) error {
	sess, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	var req zoomRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.Validate(); err != nil {
		return NewValidationError("action", err)
	}

	var view preview.View
	switch req.Action {
	case ZoomActionIn:
		view = sess.Preview.ZoomIn()
	case ZoomActionOut:
		view = sess.Preview.ZoomOut()
	default:
		view = sess.Preview.ZoomFit()
	}
	return c.JSON(http.StatusOK, view)
}

// HandlePreviewContent streams the bytes behind a live handle. Released
// handles are gone for good.
func (h *PreviewHandlerImpl) HandlePreviewContent(c echo.Context) error {
	id := c.Param("handleId")

	err := h.previews.ServeContent(c.Response(), c.Request(), id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, preview.ErrReleased):
		return NewNotFoundError("preview handle", id)
	case errors.Is(err, preview.ErrContentUnavailable):
		return NewInternalError("preview content unavailable", err)
	default:
		// Direct and fallback handles point elsewhere.
		return NewNotFoundError("preview content", id)
	}
}

// Request types

type openPreviewRequest struct {
	DocumentID string `json:"documentId"`
}

func (r *openPreviewRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.DocumentID, validation.Required),
	)
}

type zoomRequest struct {
	Action string `json:"action"`
}

func (r *zoomRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Action, validation.Required, validation.In(ZoomActionIn, ZoomActionOut, ZoomActionFit)),
	)
}

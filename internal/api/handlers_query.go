// handlers_query.go - Query editing and submission handlers
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pdf-extractor/backend/internal/query"
)

// Rejection reasons reported when a submission is refused.
const (
	ReasonNoDocuments = "no-documents"
	ReasonEmptyQuery  = "empty-query"
)

// QueryHandlerImpl implements the QueryHandler interface
type QueryHandlerImpl struct {
	sessions SessionRegistry
}

// NewQueryHandler creates a new query handler instance
func NewQueryHandler(sessions SessionRegistry) *QueryHandlerImpl {
	return &QueryHandlerImpl{sessions: sessions}
}

// HandleSetQuery stores the draft query text
func (h *QueryHandlerImpl) HandleSetQuery(c echo.Context) error {
	sess, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	status, err := sess.Flow.SetQuery(req.Query)
	if err != nil {
		return flowError(err)
	}
	return c.JSON(http.StatusOK, status)
}

// HandleSubmit starts extraction. Precondition failures are rejected
// synchronously with nothing started.
func (h *QueryHandlerImpl) HandleSubmit(c echo.Context) error {
	sess, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	status, err := sess.Flow.Submit(req.Query)
	if err != nil {
		return flowError(err)
	}
	return c.JSON(http.StatusAccepted, status)
}

// HandleGetSubmission returns the submission state
func (h *QueryHandlerImpl) HandleGetSubmission(c echo.Context) error {
	sess, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.Flow.Status())
}

// HandleResetSubmission returns a handed-off flow to composing
func (h *QueryHandlerImpl) HandleResetSubmission(c echo.Context) error {
	sess, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	status, err := sess.Flow.Reset()
	if err != nil {
		return flowError(err)
	}
	return c.JSON(http.StatusOK, status)
}

type queryRequest struct {
	Query string `json:"query"`
}

func flowError(err error) error {
	var rej *query.Rejection
	switch {
	case errors.As(err, &rej):
		reason := ReasonEmptyQuery
		if errors.Is(rej.Cause, query.ErrNoDocuments) {
			reason = ReasonNoDocuments
		}
		return NewRejectedError(reason, rej.Error())
	case errors.Is(err, query.ErrSubmitting):
		return NewConflictError(err.Error())
	case errors.Is(err, query.ErrFlowClosed):
		return NewConflictError(err.Error())
	default:
		return NewInternalError("submission failed", err)
	}
}

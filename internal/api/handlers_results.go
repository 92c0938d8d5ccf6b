// handlers_results.go - Results view handlers
package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pdf-extractor/backend/internal/handoff"
	"github.com/pdf-extractor/backend/internal/models"
	"github.com/pdf-extractor/backend/internal/results"
)

const (
	mimeXLSX    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeMsgpack = "application/x-msgpack"
)

// ResultsHandlerImpl implements the ResultsHandler interface
type ResultsHandlerImpl struct {
	handoffs handoff.Store
	results  results.Store
}

// NewResultsHandler creates a new results handler instance
func NewResultsHandler(handoffs handoff.Store, store results.Store) *ResultsHandlerImpl {
	return &ResultsHandlerImpl{handoffs: handoffs, results: store}
}

// load reads the hand-off snapshot and its result set. A missing or
// unreadable snapshot sends the client back to the dashboard.
func (h *ResultsHandlerImpl) load(c echo.Context) (*handoff.Snapshot, *models.ResultSet, error) {
	token := c.Param("token")
	ctx := c.Request().Context()

	snap, err := handoff.Read(ctx, h.handoffs, token)
	if err != nil {
		if errors.Is(err, handoff.ErrMissing) || errors.Is(err, handoff.ErrMalformed) {
			return nil, nil, NewHandoffMissingError(err)
		}
		return nil, nil, NewServiceUnavailableError("hand-off store unavailable")
	}

	set, err := h.results.Load(ctx, token)
	if err != nil {
		if errors.Is(err, results.ErrNotFound) {
			return nil, nil, NewHandoffMissingError(err)
		}
		return nil, nil, NewInternalError("failed to load results", err)
	}
	return snap, set, nil
}

// selected returns the record chosen by the document query parameter.
func selected(c echo.Context, set *models.ResultSet) (string, models.Record, error) {
	sel := c.QueryParam("document")
	if sel == "" {
		sel = models.CombinedSelector
	}
	rec, ok := set.Record(sel)
	if !ok {
		return "", nil, NewNotFoundError("document", sel)
	}
	return sel, rec, nil
}

// HandleGetResults returns the hand-off snapshot with its result set
func (h *ResultsHandlerImpl) HandleGetResults(c echo.Context) error {
	snap, set, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resultsResponse{
		Token:     set.Token,
		Query:     snap.Query,
		Documents: snap.Documents,
		Results:   set,
	})
}

// HandleGetTable returns the selected record as display rows
func (h *ResultsHandlerImpl) HandleGetTable(c echo.Context) error {
	_, set, err := h.load(c)
	if err != nil {
		return err
	}
	sel, rec, err := selected(c, set)
	if err != nil {
		return err
	}

	rows := results.Table(rec)
	if rows == nil {
		rows = []results.Row{}
	}
	return c.JSON(http.StatusOK, tableResponse{Document: sel, Rows: rows, Empty: len(rows) == 0})
}

// HandleGetJSON returns the selected record as indented JSON, the payload
// copied to the clipboard
func (h *ResultsHandlerImpl) HandleGetJSON(c echo.Context) error {
	_, set, err := h.load(c)
	if err != nil {
		return err
	}
	_, rec, err := selected(c, set)
	if err != nil {
		return err
	}

	data, err := results.PrettyJSON(rec)
	if err != nil {
		return NewInternalError("failed to encode record", err)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
}

// HandleExportCSV downloads the selected record as CSV
func (h *ResultsHandlerImpl) HandleExportCSV(c echo.Context) error {
	_, set, err := h.load(c)
	if err != nil {
		return err
	}
	sel, rec, err := selected(c, set)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := results.WriteCSV(&buf, rec); err != nil {
		return NewInternalError("failed to write CSV", err)
	}

	setAttachment(c, fmt.Sprintf("extraction-%s.csv", sel))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// HandleExportXLSX downloads the whole result set as a workbook
func (h *ResultsHandlerImpl) HandleExportXLSX(c echo.Context) error {
	_, set, err := h.load(c)
	if err != nil {
		return err
	}

	data, err := results.WorkbookXLSX(set)
	if err != nil {
		return NewInternalError("failed to build workbook", err)
	}

	setAttachment(c, "extraction.xlsx")
	return c.Blob(http.StatusOK, mimeXLSX, data)
}

// HandleGetMsgpack returns the result set in MessagePack format
func (h *ResultsHandlerImpl) HandleGetMsgpack(c echo.Context) error {
	_, set, err := h.load(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(set)
	if err != nil {
		return NewInternalError("failed to encode results", err)
	}
	return c.Blob(http.StatusOK, mimeMsgpack, data)
}

// Response types

type resultsResponse struct {
	Token     string               `json:"token"`
	Query     string               `json:"query"`
	Documents []handoff.Descriptor `json:"documents"`
	Results   *models.ResultSet    `json:"results"`
}

type tableResponse struct {
	Document string        `json:"document"`
	Rows     []results.Row `json:"rows"`
	Empty    bool          `json:"empty"`
}

func setAttachment(c echo.Context, filename string) {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
}

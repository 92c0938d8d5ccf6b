// handlers_session.go - Authoring session and document set handlers
package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/labstack/echo/v4"

	"github.com/pdf-extractor/backend/internal/models"
	"github.com/pdf-extractor/backend/internal/session"
	"github.com/pdf-extractor/backend/internal/upload"
)

// SessionHandlerImpl implements the SessionHandler and DocumentHandler interfaces
type SessionHandlerImpl struct {
	sessions SessionRegistry
}

// NewSessionHandler creates a new session handler instance
func NewSessionHandler(sessions SessionRegistry) *SessionHandlerImpl {
	return &SessionHandlerImpl{sessions: sessions}
}

// lookupSession resolves the :id path parameter.
func lookupSession(sessions SessionRegistry, c echo.Context) (*session.Session, error) {
	id := c.Param("id")
	if id == "" {
		return nil, NewValidationError("id", nil)
	}
	sess, ok := sessions.Get(id)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}
	return sess, nil
}

// HandleCreateSession starts a new authoring session
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	sess := h.sessions.Create()
	return c.JSON(http.StatusCreated, sess.Info())
}

// HandleGetSession returns the documents, preview and submission state of a session
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	sess, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.Info())
}

// HandleDiscardSession releases everything a session holds
func (h *SessionHandlerImpl) HandleDiscardSession(c echo.Context) error {
	id := c.Param("id")
	if !h.sessions.Discard(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleUploadFiles adds a batch of multipart files. Every file is reported
// as accepted or rejected; the request only fails as a whole when nothing
// was accepted.
func (h *SessionHandlerImpl) HandleUploadFiles(c echo.Context) error {
	sess, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("expected multipart form data", err)
	}
	files := form.File["files"]
	if len(files) == 0 {
		return NewValidationError("files", errors.New("no files provided"))
	}

	candidates := make([]upload.Candidate, 0, len(files))
	for _, fh := range files {
		candidates = append(candidates, candidateFromHeader(fh))
	}

	accepted, rejected := sess.Uploads.AddBatch(candidates)
	resp := uploadResponse{
		Accepted: nonNilDocs(accepted),
		Rejected: nonNilRejections(rejected),
	}

	status := http.StatusCreated
	if len(accepted) == 0 {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, resp)
}

// HandleAddLink adds a remote document by URL
func (h *SessionHandlerImpl) HandleAddLink(c echo.Context) error {
	sess, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	var req addLinkRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.Validate(); err != nil {
		return NewValidationError("url", err)
	}

	doc, rej := sess.Uploads.AddLink(req.URL)
	if rej != nil {
		return NewRejectedError(string(rej.Reason), rej.Message)
	}
	return c.JSON(http.StatusCreated, addLinkResponse{Document: doc, Warning: doc.Warning})
}

// HandleRemoveDocument removes one document and releases its preview
func (h *SessionHandlerImpl) HandleRemoveDocument(c echo.Context) error {
	sess, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	docID := c.Param("docId")
	if err := sess.Uploads.Remove(docID); err != nil {
		if errors.Is(err, upload.ErrNotFound) {
			return NewNotFoundError("document", docID)
		}
		return NewInternalError("failed to remove document", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Request/Response types

type uploadResponse struct {
	Accepted []models.Document `json:"accepted"`
	Rejected []upload.Rejection `json:"rejected"`
}

type addLinkRequest struct {
	URL string `json:"url"`
}

func (r *addLinkRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.URL, validation.Required),
	)
}

type addLinkResponse struct {
	Document models.Document `json:"document"`
	Warning  string          `json:"warning,omitempty"`
}

// Helper functions

func candidateFromHeader(fh *multipart.FileHeader) upload.Candidate {
	return upload.Candidate{
		Name:      fh.Filename,
		Size:      fh.Size,
		MediaType: fh.Header.Get(echo.HeaderContentType),
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func nonNilDocs(docs []models.Document) []models.Document {
	if docs == nil {
		return []models.Document{}
	}
	return docs
}

func nonNilRejections(r []upload.Rejection) []upload.Rejection {
	if r == nil {
		return []upload.Rejection{}
	}
	return r
}

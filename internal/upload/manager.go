// Package upload maintains the ordered document set of an authoring session.
package upload

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/pdf-extractor/backend/internal/models"
	"github.com/pdf-extractor/backend/internal/storage"
	"github.com/pdf-extractor/backend/internal/validate"
)

// ErrNotFound is returned when removing a document that is not in the set.
var ErrNotFound = errors.New("document not found")

// UnreadableWarning is attached to accepted files whose structure could
// not be parsed. They stay in the set; previewing them may fail.
const UnreadableWarning = "Could not read the PDF structure; preview may fail."

// Limits are fixed when the set is created.
type Limits struct {
	MaxFiles    int
	MaxFileSize int64
	MediaType   string
}

// Candidate is a local file offered for upload.
type Candidate struct {
	Name      string
	Size      int64
	MediaType string
	Open      func() (io.ReadCloser, error)
}

// Rejection reports why one candidate was not added.
type Rejection struct {
	Name    string          `json:"name"`
	Reason  validate.Reason `json:"reason"`
	Message string          `json:"message"`
}

func (r Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Name, r.Reason)
}

// Releaser releases display handles attached to a document.
type Releaser interface {
	ReleaseDocument(documentID string)
}

// Inspector reads the page count of stored PDF bytes.
type Inspector interface {
	PageCount(rs io.ReadSeeker) (int, error)
}

// Option configures a Set.
type Option func(*Set)

// WithReleaser sets the component notified before a document is removed.
func WithReleaser(r Releaser) Option {
	return func(s *Set) { s.releaser = r }
}

// WithInspector enables page counting of accepted files.
func WithInspector(i Inspector) Option {
	return func(s *Set) { s.inspector = i }
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(s *Set) { s.logger = l }
}

// Set is the ordered collection of documents in one authoring session.
type Set struct {
	mu        sync.RWMutex
	limits    Limits
	validator *validate.Validator
	store     storage.Store
	releaser  Releaser
	inspector Inspector
	logger    hclog.Logger
	docs      []models.Document
}

// NewSet creates an empty document set.
func NewSet(limits Limits, store storage.Store, opts ...Option) *Set {
	s := &Set{
		limits: limits,
		validator: validate.New(validate.Limits{
			MediaType:   limits.MediaType,
			MaxFileSize: limits.MaxFileSize,
		}),
		store:  store,
		logger: hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limits.MediaType = s.validator.Limits().MediaType
	return s
}

// Limits returns the set's limits.
func (s *Set) Limits() Limits {
	return s.limits
}

// AddBatch validates candidates in order and adds the valid ones while
// capacity remains. Every candidate not added is reported individually.
func (s *Set) AddBatch(candidates []Candidate) ([]models.Document, []Rejection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		accepted []models.Document
		rejected []Rejection
		errs     *multierror.Error
	)

	for _, c := range candidates {
		verdict := s.validator.CheckFile(validate.FileCandidate{
			Name:      c.Name,
			Size:      c.Size,
			MediaType: c.MediaType,
		}, s.docs)

		var rej *Rejection
		switch {
		case !verdict.Accepted:
			rej = s.rejection(c.Name, verdict.Reason)
		case s.full():
			rej = s.rejection(c.Name, validate.ReasonExceedsMaxCount)
		}
		if rej != nil {
			rejected = append(rejected, *rej)
			errs = multierror.Append(errs, rej)
			continue
		}

		doc, rej, err := s.storeCandidate(c)
		if rej != nil {
			rejected = append(rejected, *rej)
			errs = multierror.Append(errs, rej)
			if err != nil {
				s.logger.Error("failed to store upload", "name", c.Name, "error", err)
			}
			continue
		}

		s.docs = append(s.docs, doc)
		accepted = append(accepted, doc)
	}

	if err := errs.ErrorOrNil(); err != nil {
		s.logger.Info("upload batch partially rejected",
			"accepted", len(accepted), "rejected", len(rejected), "reasons", err.Error())
	} else {
		s.logger.Debug("upload batch accepted", "accepted", len(accepted))
	}

	return accepted, rejected
}

// AddLink validates and adds a remote document. A non-blocking warning may
// be carried on the returned document.
func (s *Set) AddLink(raw string) (models.Document, *Rejection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	verdict, warning := s.validator.CheckURL(raw, s.docs)
	name := validate.LinkName(raw)
	if !verdict.Accepted {
		return models.Document{}, s.rejection(name, verdict.Reason)
	}
	if s.full() {
		return models.Document{}, s.rejection(name, validate.ReasonExceedsMaxCount)
	}

	canonical, _ := validate.CanonicalURL(raw)
	doc := models.Document{
		ID:          uuid.New().String(),
		Name:        name,
		Size:        models.UnknownSize,
		Kind:        models.KindLink,
		URL:         canonical,
		ContentType: s.limits.MediaType,
		Warning:     warning,
		AddedAt:     time.Now(),
	}
	s.docs = append(s.docs, doc)

	s.logger.Debug("link added", "id", doc.ID, "url", doc.URL, "warning", warning)
	return doc, nil
}

// Remove drops a document, releasing its display handle first and then its
// stored content.
func (s *Set) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.removeAt(idx)
	return nil
}

// Clear removes every document.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.docs) > 0 {
		s.removeAt(len(s.docs) - 1)
	}
}

// Get returns a document by id.
func (s *Set) Get(id string) (models.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return models.Document{}, false
	}
	return s.docs[idx], true
}

// Documents returns a copy of the set in insertion order.
func (s *Set) Documents() []models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Document, len(s.docs))
	copy(out, s.docs)
	return out
}

// Len returns the number of documents in the set.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *Set) full() bool {
	return s.limits.MaxFiles > 0 && len(s.docs) >= s.limits.MaxFiles
}

func (s *Set) indexOf(id string) int {
	for i, d := range s.docs {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (s *Set) removeAt(idx int) {
	doc := s.docs[idx]

	if s.releaser != nil {
		s.releaser.ReleaseDocument(doc.ID)
	}
	if doc.BlobID != "" {
		if err := s.store.Delete(doc.BlobID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to delete blob", "document", doc.ID, "blob", doc.BlobID, "error", err)
		}
	}

	s.docs = append(s.docs[:idx], s.docs[idx+1:]...)
	s.logger.Debug("document removed", "id", doc.ID, "name", doc.Name)
}

func (s *Set) rejection(name string, reason validate.Reason) *Rejection {
	return &Rejection{
		Name:    name,
		Reason:  reason,
		Message: reason.Message(name, s.validator.Limits()),
	}
}

// storeCandidate copies an accepted candidate into the blob store. The size
// limit is enforced again on the bytes actually read, since the declared
// size comes from the client.
func (s *Set) storeCandidate(c Candidate) (models.Document, *Rejection, error) {
	if c.Open == nil {
		return models.Document{}, s.rejection(c.Name, validate.ReasonStorageError), errors.New("no content")
	}

	rc, err := c.Open()
	if err != nil {
		return models.Document{}, s.rejection(c.Name, validate.ReasonStorageError), fmt.Errorf("opening upload: %w", err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if s.limits.MaxFileSize > 0 {
		r = io.LimitReader(rc, s.limits.MaxFileSize+1)
	}

	info, err := s.store.Save(c.Name, c.MediaType, r)
	if err != nil {
		return models.Document{}, s.rejection(c.Name, validate.ReasonStorageError), err
	}
	if s.limits.MaxFileSize > 0 && info.Size > s.limits.MaxFileSize {
		s.store.Delete(info.ID)
		return models.Document{}, s.rejection(c.Name, validate.ReasonExceedsSizeLimit), nil
	}

	doc := models.Document{
		ID:          uuid.New().String(),
		Name:        c.Name,
		Size:        info.Size,
		Kind:        models.KindFile,
		BlobID:      info.ID,
		ContentType: c.MediaType,
		AddedAt:     time.Now(),
	}
	s.inspect(&doc)
	return doc, nil, nil
}

func (s *Set) inspect(doc *models.Document) {
	if s.inspector == nil {
		return
	}

	f, err := s.store.Open(doc.BlobID)
	if err != nil {
		s.logger.Warn("failed to open blob for inspection", "document", doc.ID, "error", err)
		return
	}
	defer f.Close()

	pages, err := s.inspector.PageCount(f)
	if err != nil {
		s.logger.Debug("pdf inspection failed", "name", doc.Name, "error", err)
		doc.Warning = UnreadableWarning
		return
	}
	doc.PageCount = pages
}

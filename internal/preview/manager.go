// Package preview manages displayable references to document content and
// the per-session preview surface that shows one document at a time.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/pdf-extractor/backend/internal/models"
	"github.com/pdf-extractor/backend/internal/storage"
)

var (
	// ErrReleased is returned when opening a handle that is no longer live.
	ErrReleased = errors.New("preview handle released")
	// ErrContentUnavailable is returned when a local document has no bytes.
	ErrContentUnavailable = errors.New("document content unavailable")
)

// FallbackWarning is attached to handles served through the external viewer.
const FallbackWarning = "The document could not be loaded directly and is shown through an external viewer."

// Mode selects how remote documents are acquired.
type Mode string

const (
	// ModeFetch downloads remote documents and serves them locally.
	ModeFetch Mode = "fetch"
	// ModeDirect hands the remote URL to the client unchanged.
	ModeDirect Mode = "direct"
)

// Config configures a Manager.
type Config struct {
	Mode Mode
	// FallbackViewerURL is a template used when a remote fetch fails. Empty
	// disables the fallback and surfaces the error instead.
	FallbackViewerURL string
	// ContentPath prefixes the URL of handles served by this process.
	ContentPath string
	Fetch       FetcherConfig
}

// Manager tracks every live handle in the process.
type Manager struct {
	mu      sync.RWMutex
	handles map[string]*Handle
	cfg     Config
	blobs   storage.Store
	fetcher *Fetcher
	logger  hclog.Logger
}

// NewManager creates a Manager.
func NewManager(cfg Config, blobs storage.Store, logger hclog.Logger) *Manager {
	if cfg.Mode == "" {
		cfg.Mode = ModeFetch
	}
	if cfg.ContentPath == "" {
		cfg.ContentPath = "/api/preview/"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Manager{
		handles: make(map[string]*Handle),
		cfg:     cfg,
		blobs:   blobs,
		fetcher: NewFetcher(cfg.Fetch, logger.Named("fetch")),
		logger:  logger,
	}
}

// Acquire creates a new handle for doc. The caller owns the handle and must
// release it.
func (m *Manager) Acquire(ctx context.Context, doc models.Document) (*Handle, error) {
	h := &Handle{
		ID:          uuid.New().String(),
		DocumentID:  doc.ID,
		ContentType: doc.ContentType,
		CreatedAt:   time.Now(),
	}

	switch doc.Kind {
	case models.KindFile:
		info, err := m.blobs.Get(doc.BlobID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrContentUnavailable, doc.Name)
		}
		h.Source = SourceLocal
		h.blobID = info.ID
		h.Size = info.Size
		if info.ContentType != "" {
			h.ContentType = info.ContentType
		}
		h.URL = m.cfg.ContentPath + h.ID

	case models.KindLink:
		if err := m.acquireRemote(ctx, doc, h); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown document kind %q", doc.Kind)
	}

	if h.ContentType == "" {
		h.ContentType = "application/pdf"
	}
	m.register(h)

	m.logger.Debug("handle acquired", "handle", h.ID, "document", doc.ID, "source", h.Source)
	return h, nil
}

func (m *Manager) acquireRemote(ctx context.Context, doc models.Document, h *Handle) error {
	if m.cfg.Mode == ModeDirect {
		h.Source = SourceDirect
		h.URL = doc.URL
		return nil
	}

	data, contentType, err := m.fetcher.Fetch(ctx, doc.URL)
	if err == nil {
		h.Source = SourceRemote
		h.data = data
		h.Size = int64(len(data))
		if contentType != "" {
			h.ContentType = contentType
		}
		h.URL = m.cfg.ContentPath + h.ID
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if m.cfg.FallbackViewerURL == "" {
		return err
	}

	m.logger.Warn("remote fetch failed, using fallback viewer", "url", doc.URL, "error", err)
	h.Source = SourceFallback
	h.URL = ExpandTemplate(m.cfg.FallbackViewerURL, doc.URL)
	h.Warning = FallbackWarning
	return nil
}

func (m *Manager) register(h *Handle) {
	h.onRelease = m.forget

	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles[h.ID] = h
}

func (m *Manager) forget(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handles, h.ID)
	m.logger.Debug("handle released", "handle", h.ID, "document", h.DocumentID)
}

// Release releases h. It is safe to call with nil or with an already
// released handle.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}
	h.Release()
}

// ReleaseDocument releases every live handle of a document.
func (m *Manager) ReleaseDocument(documentID string) {
	for _, h := range m.snapshot(func(h *Handle) bool { return h.DocumentID == documentID }) {
		h.Release()
	}
}

// ReleaseAll releases every live handle.
func (m *Manager) ReleaseAll() {
	for _, h := range m.snapshot(func(*Handle) bool { return true }) {
		h.Release()
	}
}

func (m *Manager) snapshot(match func(*Handle) bool) []*Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Handle
	for _, h := range m.handles {
		if match(h) {
			out = append(out, h)
		}
	}
	return out
}

// Lookup returns a live handle by id.
func (m *Manager) Lookup(id string) (*Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handles[id]
	return h, ok
}

// Live returns the number of handles not yet released.
func (m *Manager) Live() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}

// Open returns a reader over a live handle's content.
func (m *Manager) Open(id string) (io.ReadSeekCloser, *Handle, error) {
	h, ok := m.Lookup(id)
	if !ok || h.Released() {
		return nil, nil, ErrReleased
	}
	if !h.ServesContent() {
		return nil, h, fmt.Errorf("handle %s has no local content", id)
	}

	if h.Source == SourceRemote {
		return nopCloser{bytes.NewReader(h.data)}, h, nil
	}

	f, err := m.blobs.Open(h.blobID)
	if err != nil {
		return nil, h, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}
	return f, h, nil
}

// ServeContent writes a live handle's content to w, honoring range requests.
func (m *Manager) ServeContent(w http.ResponseWriter, r *http.Request, id string) error {
	rc, h, err := m.Open(id)
	if err != nil {
		return err
	}
	defer rc.Close()

	w.Header().Set("Content-Type", h.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, "", h.CreatedAt, rc)
	return nil
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }

package preview

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/pdf-extractor/backend/internal/models"
)

// State is the lifecycle state of a preview surface.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// LoadFailedMessage is shown when content cannot be acquired.
const LoadFailedMessage = "Failed to load PDF"

// Acquirer hands out and takes back display handles.
type Acquirer interface {
	Acquire(ctx context.Context, doc models.Document) (*Handle, error)
	Release(h *Handle)
	ReleaseDocument(documentID string)
}

// View is a snapshot of a surface for rendering.
type View struct {
	State      State               `json:"state"`
	DocumentID string              `json:"documentId,omitempty"`
	Name       string              `json:"name,omitempty"`
	Kind       models.DocumentKind `json:"kind,omitempty"`
	HandleID   string              `json:"handleId,omitempty"`
	URL        string              `json:"url,omitempty"`
	Source     Source              `json:"source,omitempty"`
	Warning    string              `json:"warning,omitempty"`
	Error      string              `json:"error,omitempty"`
	Details    string              `json:"details,omitempty"`
	// EscapeURL lets the user open a remote original when preview fails.
	EscapeURL string `json:"escapeUrl,omitempty"`
	Zoom      Zoom   `json:"zoom"`
}

// Surface displays at most one document at a time. Acquisitions that
// complete after the surface has moved on are discarded and released.
type Surface struct {
	mu       sync.Mutex
	acquirer Acquirer
	logger   hclog.Logger

	generation uint64
	cancel     context.CancelFunc
	doc        *models.Document
	handle     *Handle
	state      State
	errDetails string
	zoom       Zoom
}

// NewSurface creates an idle surface.
func NewSurface(acquirer Acquirer, logger hclog.Logger) *Surface {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Surface{
		acquirer: acquirer,
		logger:   logger,
		state:    StateIdle,
		zoom:     FitZoom(),
	}
}

// Open shows doc, blocking until its content is acquired or the attempt is
// superseded by a later Open or Close.
func (s *Surface) Open(ctx context.Context, doc models.Document) View {
	s.mu.Lock()
	changed := s.doc == nil || s.doc.ID != doc.ID
	s.resetLocked()
	if changed {
		s.zoom = FitZoom()
	}

	s.generation++
	gen := s.generation
	actx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.doc = &doc
	s.state = StateLoading
	s.mu.Unlock()

	h, err := s.acquirer.Acquire(actx, doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	cancel()

	if gen != s.generation {
		s.acquirer.Release(h)
		s.logger.Debug("discarding stale preview acquisition", "document", doc.ID)
		return s.viewLocked()
	}

	s.cancel = nil
	if err != nil {
		s.state = StateError
		s.errDetails = err.Error()
		s.logger.Warn("preview acquisition failed", "document", doc.ID, "error", err)
		return s.viewLocked()
	}

	s.handle = h
	s.state = StateReady
	return s.viewLocked()
}

// Close releases the displayed content and returns the surface to idle.
func (s *Surface) Close() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.resetLocked()
	s.doc = nil
	s.zoom = FitZoom()
	return s.viewLocked()
}

// ReleaseDocument closes the surface if it shows documentID and releases any
// other handles of that document.
func (s *Surface) ReleaseDocument(documentID string) {
	s.mu.Lock()
	active := s.doc != nil && s.doc.ID == documentID
	s.mu.Unlock()

	if active {
		s.Close()
	}
	s.acquirer.ReleaseDocument(documentID)
}

// View returns the current state.
func (s *Surface) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// ZoomIn steps the zoom up.
func (s *Surface) ZoomIn() View {
	return s.setZoom(func(z Zoom) Zoom { return z.In() })
}

// ZoomOut steps the zoom down.
func (s *Surface) ZoomOut() View {
	return s.setZoom(func(z Zoom) Zoom { return z.Out() })
}

// ZoomFit restores fit-to-container.
func (s *Surface) ZoomFit() View {
	return s.setZoom(func(Zoom) Zoom { return FitZoom() })
}

func (s *Surface) setZoom(step func(Zoom) Zoom) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = step(s.zoom)
	return s.viewLocked()
}

// resetLocked cancels any in-flight acquisition and releases the held
// handle. It leaves the target document and zoom alone.
func (s *Surface) resetLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.handle != nil {
		s.acquirer.Release(s.handle)
		s.handle = nil
	}
	s.state = StateIdle
	s.errDetails = ""
}

func (s *Surface) viewLocked() View {
	v := View{State: s.state, Zoom: s.zoom}
	if s.doc != nil {
		v.DocumentID = s.doc.ID
		v.Name = s.doc.Name
		v.Kind = s.doc.Kind
	}
	switch s.state {
	case StateReady:
		v.HandleID = s.handle.ID
		v.URL = s.handle.URL
		v.Source = s.handle.Source
		v.Warning = s.handle.Warning
	case StateError:
		v.Error = LoadFailedMessage
		v.Details = s.errDetails
		if s.doc.Kind == models.KindLink {
			v.EscapeURL = s.doc.URL
		}
	}
	return v
}

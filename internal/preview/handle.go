package preview

import (
	"sync"
	"sync/atomic"
	"time"
)

// Source describes where a handle's content comes from.
type Source string

const (
	// SourceLocal handles stream bytes from the blob store.
	SourceLocal Source = "local"
	// SourceRemote handles hold bytes fetched from the document's URL.
	SourceRemote Source = "remote"
	// SourceDirect handles point straight at the remote URL.
	SourceDirect Source = "direct"
	// SourceFallback handles point at an external viewer after a failed fetch.
	SourceFallback Source = "fallback"
)

// Handle is a revocable reference to displayable document content. Every
// acquisition yields a new Handle and each one is released exactly once.
type Handle struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"documentId"`
	Source      Source    `json:"source"`
	URL         string    `json:"url"`
	Warning     string    `json:"warning,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`

	blobID    string
	data      []byte
	once      sync.Once
	released  atomic.Bool
	onRelease func(*Handle)
}

// Release revokes the handle. Calling it more than once is a no-op.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.released.Store(true)
		if h.onRelease != nil {
			h.onRelease(h)
		}
	})
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	return h.released.Load()
}

// ServesContent reports whether the handle's bytes are served by this
// process rather than by a third party.
func (h *Handle) ServesContent() bool {
	return h.Source == SourceLocal || h.Source == SourceRemote
}

// Package session keeps the authoring sessions of the service. A session
// owns a document set, a preview surface and a submission flow.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/pdf-extractor/backend/internal/extract"
	"github.com/pdf-extractor/backend/internal/handoff"
	"github.com/pdf-extractor/backend/internal/models"
	"github.com/pdf-extractor/backend/internal/preview"
	"github.com/pdf-extractor/backend/internal/query"
	"github.com/pdf-extractor/backend/internal/results"
	"github.com/pdf-extractor/backend/internal/storage"
	"github.com/pdf-extractor/backend/internal/upload"
)

// DefaultMaxSessions bounds the registry when no limit is configured.
const DefaultMaxSessions = 100

// Deps are the process-wide components shared by every session.
type Deps struct {
	Blobs     storage.Store
	Previews  *preview.Manager
	Extractor extract.Extractor
	Handoffs  handoff.Store
	Results   results.Store
	Inspector upload.Inspector
	Limits    upload.Limits
	Flow      query.Config
}

// Session is one authoring session.
type Session struct {
	ID        string
	Uploads   *upload.Set
	Preview   *preview.Surface
	Flow      *query.Flow
	CreatedAt time.Time

	mu           sync.Mutex
	lastAccessed time.Time
}

// Info is the JSON view of a session.
type Info struct {
	ID           string            `json:"id"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastAccessed time.Time         `json:"lastAccessed"`
	MaxFiles     int               `json:"maxFiles"`
	MaxFileSize  int64             `json:"maxFileSize"`
	MediaType    string            `json:"mediaType"`
	Documents    []models.Document `json:"documents"`
	Preview      preview.View      `json:"preview"`
	Submission   query.Status      `json:"submission"`
}

// Info returns a consistent-enough snapshot of the session for display.
func (s *Session) Info() Info {
	limits := s.Uploads.Limits()
	return Info{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		LastAccessed: s.LastAccessed(),
		MaxFiles:     limits.MaxFiles,
		MaxFileSize:  limits.MaxFileSize,
		MediaType:    limits.MediaType,
		Documents:    s.Uploads.Documents(),
		Preview:      s.Preview.View(),
		Submission:   s.Flow.Status(),
	}
}

// LastAccessed returns when the session was last used.
func (s *Session) LastAccessed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccessed
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastAccessed = time.Now()
	s.mu.Unlock()
}

// close tears the session down: in-flight extraction is cancelled, the
// preview is released, then every document and its content.
func (s *Session) close() {
	s.Flow.Close()
	s.Preview.Close()
	s.Uploads.Clear()
}

// Manager handles active authoring sessions.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	deps        Deps
	maxSessions int
	logger      hclog.Logger
}

// NewManager creates a session manager.
func NewManager(deps Deps, maxSessions int, logger hclog.Logger) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Manager{
		sessions:    make(map[string]*Session),
		deps:        deps,
		maxSessions: maxSessions,
		logger:      logger,
	}
}

// Create starts a new session, evicting the least recently used one when
// the registry is full.
func (m *Manager) Create() *Session {
	id := uuid.New().String()
	logger := m.logger.With("session", id[:8])

	sess := &Session{
		ID:           id,
		CreatedAt:    time.Now(),
		lastAccessed: time.Now(),
	}
	sess.Preview = preview.NewSurface(m.deps.Previews, logger.Named("preview"))

	opts := []upload.Option{
		upload.WithReleaser(sess.Preview),
		upload.WithLogger(logger.Named("upload")),
	}
	if m.deps.Inspector != nil {
		opts = append(opts, upload.WithInspector(m.deps.Inspector))
	}
	sess.Uploads = upload.NewSet(m.deps.Limits, m.deps.Blobs, opts...)
	sess.Flow = query.NewFlow(m.deps.Flow, sess.Uploads, m.deps.Extractor, m.deps.Handoffs, m.deps.Results, logger.Named("query"))

	m.mu.Lock()
	var evicted *Session
	if len(m.sessions) >= m.maxSessions {
		evicted = m.oldestLocked()
		if evicted != nil {
			delete(m.sessions, evicted.ID)
		}
	}
	m.sessions[id] = sess
	m.mu.Unlock()

	if evicted != nil {
		m.logger.Info("evicting least recently used session", "session", evicted.ID)
		evicted.close()
	}

	m.logger.Debug("session created", "session", id)
	return sess
}

func (m *Manager) oldestLocked() *Session {
	var oldest *Session
	for _, s := range m.sessions {
		if oldest == nil || s.LastAccessed().Before(oldest.LastAccessed()) {
			oldest = s
		}
	}
	return oldest
}

// Get returns a session and marks it as used.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()

	if ok {
		sess.touch()
	}
	return sess, ok
}

// Discard closes and forgets a session.
func (m *Manager) Discard(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	sess.close()
	m.logger.Debug("session discarded", "session", id)
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupOldSessions discards sessions idle for longer than maxAge.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.LastAccessed().Before(cutoff) && s.Flow.Status().State != query.StateSubmitting {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.close()
	}
	if len(stale) > 0 {
		m.logger.Info("cleaned up idle sessions", "count", len(stale), "remaining", m.Count())
	}
	return len(stale)
}

// PurgeOrphanBlobs deletes stored blobs that no live session references.
// Blobs younger than minAge are kept so uploads still being added survive.
func (m *Manager) PurgeOrphanBlobs(minAge time.Duration) int {
	referenced := make(map[string]bool)
	m.mu.RLock()
	for _, s := range m.sessions {
		for _, d := range s.Uploads.Documents() {
			if d.BlobID != "" {
				referenced[d.BlobID] = true
			}
		}
	}
	m.mu.RUnlock()

	blobs, err := m.deps.Blobs.List(0)
	if err != nil {
		m.logger.Warn("failed to list blobs", "error", err)
		return 0
	}

	cutoff := time.Now().Add(-minAge)
	purged := 0
	for _, b := range blobs {
		if referenced[b.ID] || b.UploadedAt.After(cutoff) {
			continue
		}
		if err := m.deps.Blobs.Delete(b.ID); err != nil {
			m.logger.Warn("failed to delete orphan blob", "blob", b.ID, "error", err)
			continue
		}
		purged++
	}
	if purged > 0 {
		m.logger.Info("purged orphan blobs", "count", purged)
	}
	return purged
}

// Close discards every session.
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.close()
	}
}

package preview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdf-extractor/backend/internal/models"
)

// gatedAcquirer blocks each acquisition of a gated document until released
// through its gate channel.
type gatedAcquirer struct {
	mu       sync.Mutex
	gates    map[string]chan struct{}
	failures map[string]error
	issued   []*Handle
	docs     []string
}

func newGatedAcquirer() *gatedAcquirer {
	return &gatedAcquirer{gates: map[string]chan struct{}{}, failures: map[string]error{}}
}

func (g *gatedAcquirer) gate(docID string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan struct{})
	g.gates[docID] = ch
	return ch
}

func (g *gatedAcquirer) Acquire(ctx context.Context, doc models.Document) (*Handle, error) {
	g.mu.Lock()
	gate := g.gates[doc.ID]
	failure := g.failures[doc.ID]
	g.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if failure != nil {
		return nil, failure
	}

	h := &Handle{ID: "h-" + doc.ID, DocumentID: doc.ID, Source: SourceLocal, URL: "/api/preview/h-" + doc.ID}
	g.mu.Lock()
	g.issued = append(g.issued, h)
	g.mu.Unlock()
	return h, nil
}

func (g *gatedAcquirer) Release(h *Handle) {
	if h != nil {
		h.Release()
	}
}

func (g *gatedAcquirer) ReleaseDocument(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.docs = append(g.docs, id)
}

func (g *gatedAcquirer) liveHandles() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, h := range g.issued {
		if !h.Released() {
			n++
		}
	}
	return n
}

var (
	docA = models.Document{ID: "a", Name: "a.pdf", Kind: models.KindFile}
	docB = models.Document{ID: "b", Name: "b.pdf", Kind: models.KindFile}
	docR = models.Document{ID: "r", Name: "r.pdf", Kind: models.KindLink, URL: "https://example.com/r.pdf"}
)

func TestSurface_OpenAndClose(t *testing.T) {
	acq := newGatedAcquirer()
	s := NewSurface(acq, nil)

	assert.Equal(t, StateIdle, s.View().State)

	v := s.Open(context.Background(), docA)
	assert.Equal(t, StateReady, v.State)
	assert.Equal(t, "a", v.DocumentID)
	assert.Equal(t, "/api/preview/h-a", v.URL)
	assert.True(t, v.Zoom.Fit)

	v = s.Close()
	assert.Equal(t, StateIdle, v.State)
	assert.Empty(t, v.DocumentID)
	assert.Zero(t, acq.liveHandles())
}

func TestSurface_SwitchingDocumentsReleasesPrevious(t *testing.T) {
	acq := newGatedAcquirer()
	s := NewSurface(acq, nil)

	s.Open(context.Background(), docA)
	v := s.Open(context.Background(), docB)

	assert.Equal(t, "b", v.DocumentID)
	assert.Equal(t, 1, acq.liveHandles())
}

func TestSurface_StaleCompletionIsDiscarded(t *testing.T) {
	acq := newGatedAcquirer()
	gateA := acq.gate("a")
	s := NewSurface(acq, nil)

	done := make(chan View)
	go func() { done <- s.Open(context.Background(), docA) }()

	require.Eventually(t, func() bool { return s.View().State == StateLoading }, time.Second, time.Millisecond)

	v := s.Open(context.Background(), docB)
	require.Equal(t, StateReady, v.State)
	require.Equal(t, "b", v.DocumentID)

	close(gateA)
	stale := <-done

	assert.Equal(t, "b", stale.DocumentID, "late result for a must not replace b")
	assert.Equal(t, "b", s.View().DocumentID)
	assert.Equal(t, 1, acq.liveHandles(), "stale handle for a is released")
}

func TestSurface_CloseDuringLoading(t *testing.T) {
	acq := newGatedAcquirer()
	gateA := acq.gate("a")
	s := NewSurface(acq, nil)

	done := make(chan View)
	go func() { done <- s.Open(context.Background(), docA) }()
	require.Eventually(t, func() bool { return s.View().State == StateLoading }, time.Second, time.Millisecond)

	s.Close()
	close(gateA)
	<-done

	assert.Equal(t, StateIdle, s.View().State)
	assert.Zero(t, acq.liveHandles())
}

func TestSurface_ErrorStateOffersEscapeForLinks(t *testing.T) {
	acq := newGatedAcquirer()
	acq.failures["r"] = errors.New("connection refused")
	acq.failures["a"] = errors.New("blob missing")
	s := NewSurface(acq, nil)

	v := s.Open(context.Background(), docR)
	assert.Equal(t, StateError, v.State)
	assert.Equal(t, LoadFailedMessage, v.Error)
	assert.Equal(t, "connection refused", v.Details)
	assert.Equal(t, "https://example.com/r.pdf", v.EscapeURL)

	v = s.Open(context.Background(), docA)
	assert.Equal(t, StateError, v.State)
	assert.Empty(t, v.EscapeURL)
}

func TestSurface_ZoomResetsOnDocumentChange(t *testing.T) {
	s := NewSurface(newGatedAcquirer(), nil)

	s.Open(context.Background(), docA)
	v := s.ZoomIn()
	assert.Equal(t, Zoom{Scale: 1.2}, v.Zoom)

	v = s.Open(context.Background(), docA)
	assert.Equal(t, Zoom{Scale: 1.2}, v.Zoom, "reopening the same document keeps zoom")

	v = s.Open(context.Background(), docB)
	assert.True(t, v.Zoom.Fit)
}

func TestSurface_ReleaseDocument(t *testing.T) {
	acq := newGatedAcquirer()
	s := NewSurface(acq, nil)
	s.Open(context.Background(), docA)

	s.ReleaseDocument("b")
	assert.Equal(t, StateReady, s.View().State)

	s.ReleaseDocument("a")
	assert.Equal(t, StateIdle, s.View().State)
	assert.Zero(t, acq.liveHandles())
	assert.Equal(t, []string{"b", "a"}, acq.docs)
}

func TestZoom(t *testing.T) {
	z := FitZoom()
	assert.Equal(t, 1.2, z.In().Scale)
	assert.Equal(t, 0.8, z.Out().Scale)
	assert.Equal(t, 1.4, z.In().In().Scale)

	z = FitZoom().Out()
	for i := 0; i < 10; i++ {
		z = z.Out()
		assert.GreaterOrEqual(t, z.Scale, MinZoom)
	}
	assert.Equal(t, MinZoom, z.Scale)
	assert.Equal(t, 0.6, z.In().Scale)
}

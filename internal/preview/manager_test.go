package preview

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdf-extractor/backend/internal/models"
	"github.com/pdf-extractor/backend/internal/storage"
)

const googleViewer = "https://docs.google.com/viewer?url={url}&embedded=true"

func newTestManager(t *testing.T, cfg Config) (*Manager, storage.Store) {
	t.Helper()
	store, err := storage.NewStoreWithFs(afero.NewMemMapFs(), "/uploads")
	require.NoError(t, err)
	cfg.Fetch.RetryInterval = time.Millisecond
	return NewManager(cfg, store, nil), store
}

func localDoc(t *testing.T, store storage.Store, name, content string) models.Document {
	t.Helper()
	info, err := store.Save(name, "application/pdf", strings.NewReader(content))
	require.NoError(t, err)
	return models.Document{ID: "doc-" + name, Name: name, Kind: models.KindFile, BlobID: info.ID, Size: info.Size}
}

func readAll(t *testing.T, m *Manager, id string) string {
	t.Helper()
	rc, _, err := m.Open(id)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestManager_AcquireLocalIsFreshEachTime(t *testing.T) {
	m, store := newTestManager(t, Config{})
	doc := localDoc(t, store, "a.pdf", "%PDF-a")

	h1, err := m.Acquire(context.Background(), doc)
	require.NoError(t, err)
	h2, err := m.Acquire(context.Background(), doc)
	require.NoError(t, err)

	assert.NotEqual(t, h1.ID, h2.ID)
	assert.Equal(t, SourceLocal, h1.Source)
	assert.Equal(t, "/api/preview/"+h1.ID, h1.URL)
	assert.Equal(t, 2, m.Live())
	assert.Equal(t, "%PDF-a", readAll(t, m, h1.ID))
}

func TestManager_ReleaseIsIdempotent(t *testing.T) {
	m, store := newTestManager(t, Config{})
	doc := localDoc(t, store, "a.pdf", "%PDF-a")

	h1, _ := m.Acquire(context.Background(), doc)
	h2, _ := m.Acquire(context.Background(), doc)

	m.Release(h1)
	assert.NotPanics(t, func() { m.Release(h1) })
	assert.NotPanics(t, func() { h1.Release() })
	m.Release(nil)

	assert.True(t, h1.Released())
	assert.False(t, h2.Released())
	assert.Equal(t, 1, m.Live())

	_, _, err := m.Open(h1.ID)
	assert.ErrorIs(t, err, ErrReleased)
	assert.Equal(t, "%PDF-a", readAll(t, m, h2.ID))
}

func TestManager_AcquireLocalMissingBlob(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	_, err := m.Acquire(context.Background(), models.Document{ID: "x", Name: "x.pdf", Kind: models.KindFile, BlobID: "nope"})
	assert.ErrorIs(t, err, ErrContentUnavailable)
	assert.Zero(t, m.Live())
}

func TestManager_ReleaseDocumentAndAll(t *testing.T) {
	m, store := newTestManager(t, Config{})
	a := localDoc(t, store, "a.pdf", "a")
	b := localDoc(t, store, "b.pdf", "b")

	ha1, _ := m.Acquire(context.Background(), a)
	ha2, _ := m.Acquire(context.Background(), a)
	hb, _ := m.Acquire(context.Background(), b)

	m.ReleaseDocument(a.ID)
	assert.True(t, ha1.Released())
	assert.True(t, ha2.Released())
	assert.False(t, hb.Released())

	m.ReleaseAll()
	assert.True(t, hb.Released())
	assert.Zero(t, m.Live())
}

func TestManager_AcquireRemoteFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-remote"))
	}))
	defer server.Close()

	m, _ := newTestManager(t, Config{FallbackViewerURL: googleViewer})
	doc := models.Document{ID: "r", Name: "r.pdf", Kind: models.KindLink, URL: server.URL + "/r.pdf"}

	h, err := m.Acquire(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, h.Source)
	assert.Empty(t, h.Warning)
	assert.Equal(t, int64(len("%PDF-remote")), h.Size)
	assert.Equal(t, "%PDF-remote", readAll(t, m, h.ID))
}

func TestManager_AcquireRemoteRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("%PDF-ok"))
	}))
	defer server.Close()

	m, _ := newTestManager(t, Config{Fetch: FetcherConfig{MaxRetries: 3}})
	h, err := m.Acquire(context.Background(), models.Document{ID: "r", Kind: models.KindLink, URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, h.Source)
	assert.Equal(t, int32(3), calls.Load())
}

func TestManager_AcquireRemoteFallsBack(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	m, _ := newTestManager(t, Config{FallbackViewerURL: googleViewer, Fetch: FetcherConfig{MaxRetries: 2}})
	target := server.URL + "/doc.pdf"
	h, err := m.Acquire(context.Background(), models.Document{ID: "r", Kind: models.KindLink, URL: target})
	require.NoError(t, err)

	assert.Equal(t, SourceFallback, h.Source)
	assert.Equal(t, FallbackWarning, h.Warning)
	assert.True(t, strings.HasPrefix(h.URL, "https://docs.google.com/viewer?url="))
	assert.Contains(t, h.URL, "&embedded=true")
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus bounded retries")

	_, _, err = m.Open(h.ID)
	assert.Error(t, err, "fallback handles have no local content")
}

func TestManager_AcquireRemoteClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	m, _ := newTestManager(t, Config{Fetch: FetcherConfig{MaxRetries: 5}})
	_, err := m.Acquire(context.Background(), models.Document{ID: "r", Kind: models.KindLink, URL: server.URL})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, m.Live())
}

func TestManager_AcquireRemoteTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer server.Close()

	m, _ := newTestManager(t, Config{Fetch: FetcherConfig{MaxBytes: 10}})
	_, err := m.Acquire(context.Background(), models.Document{ID: "r", Kind: models.KindLink, URL: server.URL})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestManager_AcquireThroughRelay(t *testing.T) {
	var gotTarget string
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTarget = r.URL.Query().Get("url")
		w.Write([]byte("%PDF-relayed"))
	}))
	defer relay.Close()

	m, _ := newTestManager(t, Config{Fetch: FetcherConfig{RelayURL: relay.URL + "/?url={url}"}})
	h, err := m.Acquire(context.Background(), models.Document{ID: "r", Kind: models.KindLink, URL: "https://example.com/a b.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a b.pdf", gotTarget)
	assert.Equal(t, "%PDF-relayed", readAll(t, m, h.ID))
}

func TestManager_AcquireDirectMode(t *testing.T) {
	m, _ := newTestManager(t, Config{Mode: ModeDirect})
	h, err := m.Acquire(context.Background(), models.Document{ID: "r", Kind: models.KindLink, URL: "https://example.com/a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, SourceDirect, h.Source)
	assert.Equal(t, "https://example.com/a.pdf", h.URL)
}

func TestManager_ServeContent(t *testing.T) {
	m, store := newTestManager(t, Config{})
	h, err := m.Acquire(context.Background(), localDoc(t, store, "a.pdf", "%PDF-served"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/preview/"+h.ID, nil)
	require.NoError(t, m.ServeContent(rec, req, h.ID))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-served", rec.Body.String())

	h.Release()
	assert.ErrorIs(t, m.ServeContent(httptest.NewRecorder(), req, h.ID), ErrReleased)
}

func TestExpandTemplate(t *testing.T) {
	assert.Equal(t,
		"https://docs.google.com/viewer?url=https%3A%2F%2Fx.io%2Fa.pdf&embedded=true",
		ExpandTemplate(googleViewer, "https://x.io/a.pdf"))
	assert.Equal(t,
		"https://corsproxy.io/?https%3A%2F%2Fx.io%2Fa.pdf",
		ExpandTemplate("https://corsproxy.io/?", "https://x.io/a.pdf"))
}

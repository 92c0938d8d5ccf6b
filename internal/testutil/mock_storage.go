// mock_storage.go - In-memory blob store and extractor for tests
package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pdf-extractor/backend/internal/extract"
	"github.com/pdf-extractor/backend/internal/models"
	"github.com/pdf-extractor/backend/internal/storage"
)

// ErrInjected is returned by MockStorage when a failure has been injected.
var ErrInjected = errors.New("injected storage failure")

// MockStorage implements storage.Store in memory.
type MockStorage struct {
	mu       sync.RWMutex
	files    map[string]*models.FileInfo
	fileData map[string][]byte
	failSave bool
	seq      int
}

// NewMockStorage creates an empty mock storage.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		files:    make(map[string]*models.FileInfo),
		fileData: make(map[string][]byte),
	}
}

// FailSaves makes every following Save fail with ErrInjected.
func (m *MockStorage) FailSaves(fail bool) {
	m.mu.Lock()
	m.failSave = fail
	m.mu.Unlock()
}

func (m *MockStorage) Save(name, contentType string, r io.Reader) (*models.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return nil, ErrInjected
	}

	m.seq++
	file := &models.FileInfo{
		ID:          fmt.Sprintf("blob-%d", m.seq),
		Name:        name,
		Size:        int64(len(data)),
		ContentType: contentType,
		UploadedAt:  time.Now(),
	}
	m.files[file.ID] = file
	m.fileData[file.ID] = data
	return file, nil
}

func (m *MockStorage) Get(id string) (*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, ok := m.files[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return file, nil
}

func (m *MockStorage) Open(id string) (storage.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.fileData[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &memFile{Reader: bytes.NewReader(data), info: memInfo{name: m.files[id].Name, size: int64(len(data))}}, nil
}

func (m *MockStorage) List(limit int) ([]*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var files []*models.FileInfo
	for _, file := range m.files {
		files = append(files, file)
		if limit > 0 && len(files) >= limit {
			break
		}
	}
	return files, nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.files, id)
	delete(m.fileData, id)
	return nil
}

// Count returns the number of stored blobs.
func (m *MockStorage) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

type memFile struct {
	*bytes.Reader
	info memInfo
}

func (f *memFile) Close() error               { return nil }
func (f *memFile) Stat() (os.FileInfo, error) { return f.info, nil }

type memInfo struct {
	name string
	size int64
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return i.size }
func (i memInfo) Mode() fs.FileMode  { return 0o644 }
func (i memInfo) ModTime() time.Time { return time.Time{} }
func (i memInfo) IsDir() bool        { return false }
func (i memInfo) Sys() any           { return nil }

// StubExtractor returns a fixed record for every request. When Gate is set
// each call blocks until it is closed or the context ends.
type StubExtractor struct {
	Gate  chan struct{}
	Err   error
	calls atomic.Int32
}

func (s *StubExtractor) Extract(ctx context.Context, req extract.Request) (*extract.Output, error) {
	s.calls.Add(1)
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.Err != nil {
		return nil, s.Err
	}

	out := &extract.Output{
		Combined:  models.Record{"documents": float64(len(req.Documents)), "query": req.Query},
		Documents: make(map[string]models.Record, len(req.Documents)),
	}
	for _, d := range req.Documents {
		out.Documents[d.ID] = models.Record{"name": d.Name, "kind": string(d.Kind)}
	}
	return out, nil
}

// Calls returns how many extractions were requested.
func (s *StubExtractor) Calls() int {
	return int(s.calls.Load())
}

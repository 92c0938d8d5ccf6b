package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/pdf-extractor/backend/internal/models"
)

// ErrNotFound is returned for unknown blob ids.
var ErrNotFound = errors.New("blob not found")

// Store defines the interface for blob storage of uploaded document content.
type Store interface {
	Save(name, contentType string, r io.Reader) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	Open(id string) (File, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
}

// File is an open blob. It supports random access so PDF readers can seek
// to the cross-reference table.
type File interface {
	io.ReadSeekCloser
	io.ReaderAt
	Stat() (os.FileInfo, error)
}

// LocalStore implements Store on top of an afero filesystem.
type LocalStore struct {
	mu        sync.RWMutex
	fs        afero.Fs
	uploadDir string
	files     map[string]*models.FileInfo
}

// NewLocalStore creates a LocalStore backed by the OS filesystem.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	return NewStoreWithFs(afero.NewOsFs(), uploadDir)
}

// NewStoreWithFs creates a LocalStore on an arbitrary afero filesystem.
func NewStoreWithFs(fs afero.Fs, uploadDir string) (*LocalStore, error) {
	if err := fs.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	return &LocalStore{
		fs:        fs,
		uploadDir: uploadDir,
		files:     make(map[string]*models.FileInfo),
	}, nil
}

// Save writes r to a new blob.
func (s *LocalStore) Save(name, contentType string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := s.path(id)

	f, err := s.fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating blob: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		s.fs.Remove(path)
		return nil, fmt.Errorf("writing blob: %w", err)
	}

	info := &models.FileInfo{
		ID:          id,
		Name:        name,
		Size:        size,
		ContentType: contentType,
		UploadedAt:  time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info

	return info, nil
}

// Get retrieves blob metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	copied := *info
	return &copied, nil
}

// Open opens a blob for reading.
func (s *LocalStore) Open(id string) (File, error) {
	s.mu.RLock()
	_, ok := s.files[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	f, err := s.fs.Open(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("opening blob: %w", err)
	}
	return f, nil
}

// List returns the most recent blobs.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		copied := *info
		list = append(list, &copied)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes a blob.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := s.fs.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting blob: %w", err)
	}

	delete(s.files, id)
	return nil
}

func (s *LocalStore) path(id string) string {
	return filepath.Join(s.uploadDir, id)
}

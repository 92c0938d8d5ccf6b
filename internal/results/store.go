package results

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pdf-extractor/backend/internal/models"
)

// ErrNotFound is returned for unknown tokens.
var ErrNotFound = errors.New("result set not found")

// Store persists result sets by hand-off token.
type Store interface {
	Save(ctx context.Context, set *models.ResultSet) error
	Load(ctx context.Context, token string) (*models.ResultSet, error)
	Delete(ctx context.Context, token string) error
	// Prune drops result sets created before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

// MemoryStore keeps result sets in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	sets map[string]*models.ResultSet
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string]*models.ResultSet)}
}

func (m *MemoryStore) Save(_ context.Context, set *models.ResultSet) error {
	if set == nil || set.Token == "" {
		return fmt.Errorf("result set has no token")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[set.Token] = set
	return nil
}

func (m *MemoryStore) Load(_ context.Context, token string) (*models.ResultSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.sets[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, token)
	}
	return set, nil
}

func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets, token)
	return nil
}

func (m *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for token, set := range m.sets {
		if set.CreatedAt.Before(cutoff) {
			delete(m.sets, token)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Close() error { return nil }

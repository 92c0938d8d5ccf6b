package handoff

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps snapshot entries by token.
type Store interface {
	Put(ctx context.Context, token string, entries map[string]string) error
	Get(ctx context.Context, token string) (map[string]string, error)
	Delete(ctx context.Context, token string) error
}

// Write encodes and stores a snapshot.
func Write(ctx context.Context, store Store, token string, s Snapshot) error {
	entries, err := Encode(s)
	if err != nil {
		return err
	}
	return store.Put(ctx, token, entries)
}

// Read loads and decodes a snapshot. Reads are non-destructive.
func Read(ctx context.Context, store Store, token string) (*Snapshot, error) {
	entries, err := store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	return Decode(entries)
}

type memoryEntry struct {
	entries   map[string]string
	expiresAt time.Time
}

// MemoryStore is an in-process Store with per-token expiry.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]memoryEntry
	now   func() time.Time
}

// NewMemoryStore creates a MemoryStore. A zero ttl keeps entries forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:   ttl,
		items: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

func (m *MemoryStore) Put(_ context.Context, token string, entries map[string]string) error {
	copied := make(map[string]string, len(entries))
	for k, v := range entries {
		copied[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	item := memoryEntry{entries: copied}
	if m.ttl > 0 {
		item.expiresAt = m.now().Add(m.ttl)
	}
	m.items[token] = item
	return nil
}

// Get returns a copy of the entries. Unknown or expired tokens yield an
// empty map, which Decode reports as ErrMissing.
func (m *MemoryStore) Get(_ context.Context, token string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[token]
	if !ok {
		return map[string]string{}, nil
	}
	if !item.expiresAt.IsZero() && m.now().After(item.expiresAt) {
		delete(m.items, token)
		return map[string]string{}, nil
	}

	out := make(map[string]string, len(item.entries))
	for k, v := range item.entries {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, token)
	return nil
}

// Sweep drops expired entries.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for token, item := range m.items {
		if !item.expiresAt.IsZero() && now.After(item.expiresAt) {
			delete(m.items, token)
			n++
		}
	}
	return n
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	TTL      time.Duration
}

// RedisStore keeps each snapshot in a Redis hash with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, ttl: cfg.TTL, prefix: "handoff:"}, nil
}

func (r *RedisStore) key(token string) string {
	return r.prefix + token
}

func (r *RedisStore) Put(ctx context.Context, token string, entries map[string]string) error {
	values := make(map[string]any, len(entries))
	for k, v := range entries {
		values[k] = v
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key(token))
	pipe.HSet(ctx, r.key(token), values)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.key(token), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing hand-off %s: %w", token, err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, token string) (map[string]string, error) {
	entries, err := r.client.HGetAll(ctx, r.key(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading hand-off %s: %w", token, err)
	}
	return entries, nil
}

func (r *RedisStore) Delete(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.key(token)).Err(); err != nil {
		return fmt.Errorf("deleting hand-off %s: %w", token, err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

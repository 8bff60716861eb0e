package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/xtrntr/nuamexchange/internal/models"

	"github.com/redis/go-redis/v9"
)

// SessionStore binds session ids to identities
type SessionStore interface {
	Put(ctx context.Context, id string, identity models.Identity) error
	Get(ctx context.Context, id string) (models.Identity, error)
	Delete(ctx context.Context, id string) error
}

// MemorySessionStore keeps sessions for the lifetime of the process
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Identity
}

// NewMemorySessionStore creates an empty store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]models.Identity)}
}

func (m *MemorySessionStore) Put(_ context.Context, id string, identity models.Identity) error {
	m.mu.Lock()
	m.sessions[id] = identity
	m.mu.Unlock()
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (models.Identity, error) {
	m.mu.RLock()
	identity, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return models.Identity{}, models.ErrNotFound
	}
	return identity, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Len returns the number of open sessions
func (m *MemorySessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RedisSessionStore keeps sessions in Redis without a TTL
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisSessionStore creates a store on an existing client
func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: "nuam:session:"}
}

func (r *RedisSessionStore) Put(ctx context.Context, id string, identity models.Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+id, data, 0).Err(); err != nil {
		return models.Unavailable("redis", err)
	}
	return nil
}

func (r *RedisSessionStore) Get(ctx context.Context, id string) (models.Identity, error) {
	data, err := r.client.Get(ctx, r.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Identity{}, models.ErrNotFound
		}
		return models.Identity{}, models.Unavailable("redis", err)
	}
	var identity models.Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return models.Identity{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return identity, nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, r.prefix+id).Result()
	if err != nil {
		return models.Unavailable("redis", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Ping checks connectivity
func (r *RedisSessionStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return models.Unavailable("redis", err)
	}
	return nil
}

package inflight

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the marker backend for the in-flight guard. Acquire is
// first-writer-wins with a TTL; Release drops the marker early when the
// request finishes before the window closes.
type Store interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type memoryEntry struct {
	expiresAt time.Time
}

// sweepInterval bounds how often Acquire scans the map for expired markers.
const sweepInterval = time.Minute

// MemoryStore keeps markers in-process. It only protects a single instance;
// multi-instance deployments should use the redis store.
type MemoryStore struct {
	mu        sync.Mutex
	items     map[string]memoryEntry
	lastSweep time.Time
}

// NewMemoryStore constructs an empty in-process marker store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryEntry), lastSweep: time.Now()}
}

func (s *MemoryStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	_ = ctx
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	if entry, ok := s.items[key]; ok && entry.expiresAt.After(now) {
		return false, nil
	}
	s.items[key] = memoryEntry{expiresAt: now.Add(ttl)}
	return true, nil
}

// sweepLocked drops expired markers so the map does not grow without bound
// across distinct keys. Caller holds the mutex.
func (s *MemoryStore) sweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	for key, entry := range s.items {
		if !entry.expiresAt.After(now) {
			delete(s.items, key)
		}
	}
	s.lastSweep = now
}

func (s *MemoryStore) Release(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// RedisStore backs the guard with SETNX markers so the de-dup window holds
// across instances sharing one cache.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a marker store on the given redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "inflight:"}
}

func (s *RedisStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+key, 1, ttl).Result()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

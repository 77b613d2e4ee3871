package memory

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/ridgegate/ridgegate/pkg/store"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memory store is closed")

// Store implements both store.Store and store.AtomicStore in process memory.
// It backs single-node deployments and tests; the etcd and redis drivers
// provide the same interfaces for distributed setups.
type Store struct {
	mu       sync.RWMutex
	kv       map[string][]byte
	counters map[string]*counterEntry
	closed   bool
}

type counterEntry struct {
	value     int64
	expiresAt time.Time
}

func (e *counterEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		kv:       make(map[string][]byte),
		counters: make(map[string]*counterEntry),
	}
}

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	value, ok := s.kv[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Put stores a value by key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.kv[key] = stored
	return nil
}

// Delete removes a key from either the KV space or the counter space.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.kv[key]; ok {
		delete(s.kv, key)
		return nil
	}
	return s.deleteCounter(key)
}

// List returns all key/value pairs under the given prefix.
func (s *Store) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	result := make(map[string][]byte)
	for key, value := range s.kv {
		if strings.HasPrefix(key, prefix) {
			out := make([]byte, len(value))
			copy(out, value)
			result[key] = out
		}
	}
	return result, nil
}

// Exists checks whether a key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.kv[key]
	return ok, nil
}

// IncrWithTTL atomically increments the counter for key. The increment and
// the conditional expiry-set happen under one lock hold, so a fresh counter
// always carries its TTL.
func (s *Store) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, 0, ErrClosed
	}
	now := time.Now()
	entry, ok := s.counters[key]
	if !ok || entry.expired(now) {
		entry = &counterEntry{value: 0}
		if ttl > 0 {
			entry.expiresAt = now.Add(ttl)
		}
		s.counters[key] = entry
	}
	entry.value++

	var remaining time.Duration
	if !entry.expiresAt.IsZero() {
		remaining = entry.expiresAt.Sub(now)
	}
	return entry.value, remaining, nil
}

// GetWithTTL reads a counter without incrementing it.
func (s *Store) GetWithTTL(ctx context.Context, key string) (int64, time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, 0, ErrClosed
	}
	now := time.Now()
	entry, ok := s.counters[key]
	if !ok || entry.expired(now) {
		return 0, 0, nil
	}

	var remaining time.Duration
	if !entry.expiresAt.IsZero() {
		remaining = entry.expiresAt.Sub(now)
	}
	return entry.value, remaining, nil
}

// DeleteByPattern removes all counters whose key matches the glob pattern.
func (s *Store) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	var deleted int64
	for key := range s.counters {
		if matched, _ := path.Match(pattern, key); matched {
			delete(s.counters, key)
			deleted++
		}
	}
	return deleted, nil
}

// deleteCounter removes one counter; Delete dispatches to it when the key is
// not in the KV space so a single memory store can serve both interfaces.
func (s *Store) deleteCounter(key string) error {
	if _, ok := s.counters[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.counters, key)
	return nil
}

// Close releases the store's contents.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kv = make(map[string][]byte)
	s.counters = make(map[string]*counterEntry)
	s.closed = true
	return nil
}

// Health reports the store status.
func (s *Store) Health(ctx context.Context) store.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := "healthy"
	if s.closed {
		status = "unhealthy"
	}
	return store.HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"type":       "memory",
			"keys_count": len(s.kv) + len(s.counters),
		},
	}
}

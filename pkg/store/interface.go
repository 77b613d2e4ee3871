package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

// Store defines the interface for durable key-value storage. The route
// store persists route definitions and health records through it.
type Store interface {
	// Get retrieves a value by key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores a value by key, overwriting any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes a key. Returns ErrNotFound if absent.
	Delete(ctx context.Context, key string) error

	// List returns all key/value pairs under the given prefix.
	List(ctx context.Context, prefix string) (map[string][]byte, error)

	// Exists checks whether a key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Close closes the store connection.
	Close() error

	// Health returns the health status of the store backend.
	Health(ctx context.Context) HealthStatus
}

// AtomicStore defines the interface for shared counters with TTL semantics.
// It is designed for rate limiting: the increment and the first-request
// expiry must be computed from a single atomic snapshot so a counter can
// never be created without its expiry.
type AtomicStore interface {
	// IncrWithTTL atomically increments the counter for key, setting its
	// expiry to ttl only when this increment created the key. Returns the
	// post-increment count and the remaining TTL.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error)

	// GetWithTTL reads the counter and its remaining TTL without
	// incrementing. Returns 0, 0 when the key does not exist.
	GetWithTTL(ctx context.Context, key string) (int64, time.Duration, error)

	// Delete removes a single counter.
	Delete(ctx context.Context, key string) error

	// DeleteByPattern removes all counters matching a glob pattern and
	// returns the number deleted.
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)

	// Close closes the store connection.
	Close() error

	// Health returns the health status of the store backend.
	Health(ctx context.Context) HealthStatus
}

// HealthStatus represents the health of a store backend.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

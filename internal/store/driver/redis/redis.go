package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ridgegate/ridgegate/pkg/store"
)

// incrWithTTLScript increments a counter and attaches the window expiry in
// the same atomic unit. Computing both from one script invocation guarantees
// a first request can never create a counter without its TTL.
var incrWithTTLScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)

// Config represents Redis connection configuration.
type Config struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Store implements store.AtomicStore using Redis. It backs the rate limiter
// when counters must be shared across gateway instances.
type Store struct {
	client *redis.Client
	config *Config
}

// New creates a Redis store and verifies connectivity.
func New(config *Config) (*Store, error) {
	if config == nil || config.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opts := &redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	}
	if config.Timeout > 0 {
		opts.DialTimeout = config.Timeout
		opts.ReadTimeout = config.Timeout
		opts.WriteTimeout = config.Timeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{client: client, config: config}, nil
}

// NewWithClient wraps an existing client. Used by tests with miniredis.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client, config: &Config{}}
}

// IncrWithTTL atomically increments the counter for key, setting the expiry
// only on the increment that created it.
func (s *Store) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	result, err := incrWithTTLScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment key %s: %w", key, err)
	}
	if len(result) != 2 {
		return 0, 0, fmt.Errorf("unexpected script reply for key %s: %v", key, result)
	}

	count, _ := result[0].(int64)
	ttlMS, _ := result[1].(int64)
	remaining := time.Duration(0)
	if ttlMS > 0 {
		remaining = time.Duration(ttlMS) * time.Millisecond
	}
	return count, remaining, nil
}

// GetWithTTL reads a counter and its remaining TTL without incrementing.
func (s *Store) GetWithTTL(ctx context.Context, key string) (int64, time.Duration, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, 0, fmt.Errorf("failed to read key %s: %w", key, err)
	}

	count, err := getCmd.Int64()
	if err == redis.Nil {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse counter %s: %w", key, err)
	}

	remaining := ttlCmd.Val()
	if remaining < 0 {
		remaining = 0
	}
	return count, remaining, nil
}

// Delete removes a single counter.
func (s *Store) Delete(ctx context.Context, key string) error {
	deleted, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	if deleted == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteByPattern enumerates keys matching the glob pattern with SCAN and
// deletes them in one batch.
func (s *Store) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan pattern %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete keys for pattern %s: %w", pattern, err)
	}
	return deleted, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Health reports connectivity to the Redis backend.
func (s *Store) Health(ctx context.Context) store.HealthStatus {
	health := store.HealthStatus{
		Status:    "healthy",
		Message:   "redis store is operational",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"type":    "redis",
			"address": s.config.Address,
			"db":      s.config.DB,
		},
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		health.Status = "unhealthy"
		health.Message = fmt.Sprintf("redis connection failed: %v", err)
	}
	return health
}

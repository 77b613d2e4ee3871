package etcd

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ridgegate/ridgegate/pkg/store"
)

// Config represents etcd connection configuration.
type Config struct {
	Endpoints []string      `yaml:"endpoints"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	Timeout   time.Duration `yaml:"timeout"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// Store implements store.Store using etcd. It is the durable backend for
// route definitions and health records in clustered deployments.
type Store struct {
	client    *clientv3.Client
	keyPrefix string
	config    *Config
}

// New creates an etcd store.
func New(config *Config) (*Store, error) {
	if config == nil || len(config.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints are required")
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	clientConfig := clientv3.Config{
		Endpoints:   config.Endpoints,
		DialTimeout: timeout,
	}
	if config.Username != "" {
		clientConfig.Username = config.Username
		clientConfig.Password = config.Password
	}

	client, err := clientv3.New(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	return &Store{
		client:    client,
		keyPrefix: config.KeyPrefix,
		config:    config,
	}, nil
}

func (s *Store) fullKey(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return s.keyPrefix + "/" + key
}

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.Get(ctx, s.fullKey(key))
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, store.ErrNotFound
	}
	return resp.Kvs[0].Value, nil
}

// Put stores a value by key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.client.Put(ctx, s.fullKey(key), string(value)); err != nil {
		return fmt.Errorf("failed to put key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	resp, err := s.client.Delete(ctx, s.fullKey(key))
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	if resp.Deleted == 0 {
		return store.ErrNotFound
	}
	return nil
}

// List returns all key/value pairs under the given prefix. Keys are
// returned without the store's own prefix, matching the memory driver.
func (s *Store) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	full := s.fullKey(prefix)
	resp, err := s.client.Get(ctx, full, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list prefix %s: %w", prefix, err)
	}

	result := make(map[string][]byte, len(resp.Kvs))
	strip := len(full) - len(prefix)
	for _, kv := range resp.Kvs {
		key := string(kv.Key)
		if strip > 0 && len(key) >= strip {
			key = key[strip:]
		}
		result[key] = kv.Value
	}
	return result, nil
}

// Exists checks whether a key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	resp, err := s.client.Get(ctx, s.fullKey(key), clientv3.WithCountOnly())
	if err != nil {
		return false, fmt.Errorf("failed to check key %s: %w", key, err)
	}
	return resp.Count > 0, nil
}

// Close closes the etcd client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Health reports connectivity to the etcd cluster.
func (s *Store) Health(ctx context.Context) store.HealthStatus {
	health := store.HealthStatus{
		Status:    "healthy",
		Message:   "etcd store is operational",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"type":      "etcd",
			"endpoints": s.config.Endpoints,
		},
	}

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := s.client.Status(checkCtx, s.config.Endpoints[0]); err != nil {
		health.Status = "unhealthy"
		health.Message = fmt.Sprintf("etcd status check failed: %v", err)
	}
	return health
}

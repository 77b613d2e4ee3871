package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if cfg.CircuitBreaker.FailureThreshold != 5 || cfg.CircuitBreaker.ResetTimeout != 60*time.Second {
		t.Errorf("breaker defaults = %+v", cfg.CircuitBreaker)
	}
	if cfg.RateLimit.Points != 100 || cfg.RateLimit.Storage != "memory" {
		t.Errorf("rate limit defaults = %+v", cfg.RateLimit)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("driver = %q, want default memory", cfg.Store.Driver)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  address: ":9090"
routes:
  strict_registration: true
rate_limit:
  points: 10
  duration: 5s
store:
  driver: etcd
  etcd:
    endpoints: ["etcd-1:2379", "etcd-2:2379"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if !cfg.Routes.StrictRegistration {
		t.Error("strict registration not set")
	}
	if cfg.RateLimit.Points != 10 || cfg.RateLimit.Duration != 5*time.Second {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.Store.Driver != "etcd" || len(cfg.Store.Etcd.Endpoints) != 2 {
		t.Errorf("store = %+v", cfg.Store)
	}
	// Untouched sections keep defaults.
	if cfg.Health.Interval != 30*time.Second {
		t.Errorf("health interval = %v", cfg.Health.Interval)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("server: [not a mapping"), 0o644)

	if _, err := Load(path); err == nil {
		t.Error("Load of malformed YAML succeeded")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RIDGEGATE_SERVER_ADDRESS", ":7070")
	t.Setenv("RIDGEGATE_STORE_DRIVER", "etcd")
	t.Setenv("RIDGEGATE_ETCD_ENDPOINTS", "a:2379,b:2379")
	t.Setenv("RIDGEGATE_RATELIMIT_STORAGE", "redis")
	t.Setenv("RIDGEGATE_REDIS_ADDRESS", "cache:6379")
	t.Setenv("RIDGEGATE_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if cfg.Store.Driver != "etcd" || len(cfg.Store.Etcd.Endpoints) != 2 {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.RateLimit.Storage != "redis" || cfg.RateLimit.Redis.Address != "cache:6379" {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{"empty address", func(c *Config) { c.Server.Address = "" }, "server.address"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }, "store driver"},
		{"etcd without endpoints", func(c *Config) {
			c.Store.Driver = "etcd"
			c.Store.Etcd.Endpoints = nil
		}, "endpoints"},
		{"unknown storage", func(c *Config) { c.RateLimit.Storage = "mongo" }, "storage"},
		{"redis without address", func(c *Config) {
			c.RateLimit.Storage = "redis"
			c.RateLimit.Redis.Address = ""
		}, "redis.address"},
		{"non-positive points", func(c *Config) { c.RateLimit.Points = 0 }, "points"},
		{"non-positive threshold", func(c *Config) { c.CircuitBreaker.FailureThreshold = 0 }, "failure_threshold"},
		{"non-positive interval", func(c *Config) { c.Health.Interval = 0 }, "interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate succeeded")
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("error %q does not mention %q", err, tt.message)
			}
		})
	}
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        ":8080",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
		Proxy: ProxyConfig{
			DefaultTimeout:        30 * time.Second,
			ConnectTimeout:        5 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			KeepAliveTimeout:      60 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
		},
		Routes: RoutesConfig{
			StrictRegistration: false,
			ProbePath:          "/health",
			ProbeTimeout:       5 * time.Second,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Points:    100,
			Duration:  60 * time.Second,
			KeyPrefix: "ratelimit:",
			Storage:   "memory",
			Redis: RedisConfig{
				Address: "localhost:6379",
				Timeout: 5 * time.Second,
			},
		},
		Store: StoreConfig{
			Driver:    "memory",
			KeyPrefix: "ridgegate",
			Etcd: EtcdConfig{
				Endpoints: []string{"localhost:2379"},
				Timeout:   5 * time.Second,
			},
		},
		Health: HealthConfig{
			Interval:       30 * time.Second,
			ProbeTimeout:   5 * time.Second,
			AlertThreshold: 3,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load loads configuration from a YAML file with environment variable
// overrides. A missing file is not an error; defaults apply.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deploy environments override connection settings
// without editing the config file.
func applyEnvOverrides(cfg *Config) {
	if addr := os.Getenv("RIDGEGATE_SERVER_ADDRESS"); addr != "" {
		cfg.Server.Address = addr
	}
	if driver := os.Getenv("RIDGEGATE_STORE_DRIVER"); driver != "" {
		cfg.Store.Driver = driver
	}
	if endpoints := os.Getenv("RIDGEGATE_ETCD_ENDPOINTS"); endpoints != "" {
		cfg.Store.Etcd.Endpoints = strings.Split(endpoints, ",")
	}
	if username := os.Getenv("RIDGEGATE_ETCD_USERNAME"); username != "" {
		cfg.Store.Etcd.Username = username
	}
	if password := os.Getenv("RIDGEGATE_ETCD_PASSWORD"); password != "" {
		cfg.Store.Etcd.Password = password
	}
	if storage := os.Getenv("RIDGEGATE_RATELIMIT_STORAGE"); storage != "" {
		cfg.RateLimit.Storage = storage
	}
	if addr := os.Getenv("RIDGEGATE_REDIS_ADDRESS"); addr != "" {
		cfg.RateLimit.Redis.Address = addr
	}
	if password := os.Getenv("RIDGEGATE_REDIS_PASSWORD"); password != "" {
		cfg.RateLimit.Redis.Password = password
	}
	if level := os.Getenv("RIDGEGATE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address cannot be empty")
	}
	switch c.Store.Driver {
	case "memory":
	case "etcd":
		if len(c.Store.Etcd.Endpoints) == 0 {
			return fmt.Errorf("store.etcd.endpoints cannot be empty when driver is etcd")
		}
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	switch c.RateLimit.Storage {
	case "memory":
	case "redis":
		if c.RateLimit.Redis.Address == "" {
			return fmt.Errorf("rate_limit.redis.address cannot be empty when storage is redis")
		}
	default:
		return fmt.Errorf("unsupported rate limit storage %q", c.RateLimit.Storage)
	}
	if c.RateLimit.Points <= 0 {
		return fmt.Errorf("rate_limit.points must be positive")
	}
	if c.RateLimit.Duration <= 0 {
		return fmt.Errorf("rate_limit.duration must be positive")
	}
	if c.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be positive")
	}
	if c.Health.Interval <= 0 {
		return fmt.Errorf("health.interval must be positive")
	}
	return nil
}

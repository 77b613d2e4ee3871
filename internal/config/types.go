package config

import "time"

// Config represents the complete gateway configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Proxy          ProxyConfig          `yaml:"proxy"`
	Routes         RoutesConfig         `yaml:"routes"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Store          StoreConfig          `yaml:"store"`
	Health         HealthConfig         `yaml:"health"`
	Logging        LoggingConfig        `yaml:"logging"`
	Metrics        MetricsConfig        `yaml:"metrics"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Address        string        `yaml:"address"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	TLS            TLSConfig     `yaml:"tls"`
}

// TLSConfig represents TLS listener configuration.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProxyConfig represents outbound forwarding configuration.
type ProxyConfig struct {
	// DefaultTimeout bounds a forwarded request when the route carries no
	// timeout override of its own.
	DefaultTimeout        time.Duration `yaml:"default_timeout"`
	ConnectTimeout        time.Duration `yaml:"connect_timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
	KeepAliveTimeout      time.Duration `yaml:"keep_alive_timeout"`
	MaxIdleConns          int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host"`
}

// RoutesConfig represents route store configuration.
type RoutesConfig struct {
	// StrictRegistration makes POST /routes probe every candidate endpoint
	// and reject the route when none answers. Explicit switch, never
	// inferred from environment.
	StrictRegistration bool          `yaml:"strict_registration"`
	ProbePath          string        `yaml:"probe_path"`
	ProbeTimeout       time.Duration `yaml:"probe_timeout"`
}

// CircuitBreakerConfig represents per-service circuit breaker defaults.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// RateLimitConfig represents fixed-window rate limiter defaults.
type RateLimitConfig struct {
	Points    int           `yaml:"points"`
	Duration  time.Duration `yaml:"duration"`
	KeyPrefix string        `yaml:"key_prefix"`

	// Storage selects the counter backend: "memory" or "redis".
	Storage string      `yaml:"storage"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig represents Redis connection settings for the rate limiter.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StoreConfig represents the durable route store backend.
type StoreConfig struct {
	// Driver selects the backend: "memory" or "etcd".
	Driver    string     `yaml:"driver"`
	KeyPrefix string     `yaml:"key_prefix"`
	Etcd      EtcdConfig `yaml:"etcd"`
}

// EtcdConfig represents etcd connection settings.
type EtcdConfig struct {
	Endpoints []string      `yaml:"endpoints"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	Timeout   time.Duration `yaml:"timeout"`
}

// HealthConfig represents the health monitor sweep configuration.
type HealthConfig struct {
	Interval       time.Duration `yaml:"interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	AlertThreshold int           `yaml:"alert_threshold"`
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// MetricsConfig represents the Prometheus export endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

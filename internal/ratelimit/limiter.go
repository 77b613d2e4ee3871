package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ridgegate/ridgegate/internal/types"
	"github.com/ridgegate/ridgegate/pkg/store"
)

// Config holds fixed-window rate limiter settings.
type Config struct {
	// Points is the number of requests allowed per window.
	Points int `yaml:"points"`

	// Duration is the window length.
	Duration time.Duration `yaml:"duration"`

	// KeyPrefix namespaces counter keys in shared storage.
	KeyPrefix string `yaml:"key_prefix"`
}

// DefaultConfig returns the default limiter configuration.
func DefaultConfig() Config {
	return Config{
		Points:    100,
		Duration:  60 * time.Second,
		KeyPrefix: "ratelimit:",
	}
}

// Result describes the outcome of a consumption attempt.
type Result struct {
	// Allowed reports whether the request fits in the current window.
	Allowed bool

	// Limit is the window capacity that applied to this check.
	Limit int

	// Remaining is the number of requests left in the window.
	Remaining int

	// ResetAt is when the window expires, in epoch milliseconds.
	ResetAt int64
}

// Limiter is a fixed-window rate limiter over atomic counter storage.
// Each client key owns one counter per window; the counter's TTL marks the
// window boundary and its expiry starts the next window implicitly.
type Limiter struct {
	config  Config
	counter store.AtomicStore
	logger  *zap.Logger
	now     func() time.Time
}

// NewLimiter creates a limiter backed by the given atomic counter store.
func NewLimiter(config Config, counter store.AtomicStore, logger *zap.Logger) *Limiter {
	if config.Points <= 0 {
		config.Points = DefaultConfig().Points
	}
	if config.Duration <= 0 {
		config.Duration = DefaultConfig().Duration
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		config:  config,
		counter: counter,
		logger:  logger,
		now:     time.Now,
	}
}

func (l *Limiter) key(clientKey string) string {
	return l.config.KeyPrefix + clientKey
}

// effective resolves per-route overrides against the limiter defaults.
func (l *Limiter) effective(override *types.RouteConfig) (int, time.Duration) {
	points := l.config.Points
	duration := l.config.Duration
	if override != nil {
		if override.RateLimitPoints > 0 {
			points = override.RateLimitPoints
		}
		if override.RateLimitDuration > 0 {
			duration = time.Duration(override.RateLimitDuration) * time.Second
		}
	}
	return points, duration
}

// Allow consumes one point for the client. A counter that does not exist
// yet is created with the window TTL and the increment applied in the same
// atomic storage operation, so concurrent first requests cannot produce a
// window without an expiry.
func (l *Limiter) Allow(ctx context.Context, clientKey string, override *types.RouteConfig) (*Result, error) {
	points, duration := l.effective(override)

	count, remaining, err := l.counter.IncrWithTTL(ctx, l.key(clientKey), duration)
	if err != nil {
		return nil, fmt.Errorf("rate limit storage: %w", err)
	}

	res := &Result{
		Allowed:   count <= int64(points),
		Limit:     points,
		Remaining: points - int(count),
		ResetAt:   l.now().Add(remaining).UnixMilli(),
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		l.logger.Debug("rate limit exceeded",
			zap.String("client_key", clientKey),
			zap.Int64("count", count),
			zap.Int("limit", points))
	}
	return res, nil
}

// Info reports window state for a client without consuming a point.
func (l *Limiter) Info(ctx context.Context, clientKey string, override *types.RouteConfig) (*Result, error) {
	points, _ := l.effective(override)

	count, remaining, err := l.counter.GetWithTTL(ctx, l.key(clientKey))
	if err != nil {
		return nil, fmt.Errorf("rate limit storage: %w", err)
	}

	res := &Result{
		Allowed:   count < int64(points),
		Limit:     points,
		Remaining: points - int(count),
		ResetAt:   l.now().Add(remaining).UnixMilli(),
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	return res, nil
}

// Reset clears the window for one client. Resetting a client with no
// active window is not an error.
func (l *Limiter) Reset(ctx context.Context, clientKey string) error {
	err := l.counter.Delete(ctx, l.key(clientKey))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("rate limit reset: %w", err)
	}
	return nil
}

// ResetAll clears every window under the limiter's key prefix.
func (l *Limiter) ResetAll(ctx context.Context) error {
	removed, err := l.counter.DeleteByPattern(ctx, l.config.KeyPrefix+"*")
	if err != nil {
		return fmt.Errorf("rate limit reset all: %w", err)
	}
	l.logger.Info("rate limit windows cleared", zap.Int64("removed", removed))
	return nil
}

// ClientKey derives the rate limit identity of a request. An explicit API
// key takes precedence; otherwise the client IP is used, trusting proxy
// headers before falling back to the connection address.
func ClientKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return clientIP(r)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// First hop in the chain is the original client.
		if i := strings.Index(fwd, ","); i >= 0 {
			fwd = fwd[:i]
		}
		if ip := strings.TrimSpace(fwd); ip != "" {
			return ip
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SetHeaders writes standard rate limit headers onto a response.
func SetHeaders(w http.ResponseWriter, res *Result) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", res.Limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", res.Remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", res.ResetAt))
}

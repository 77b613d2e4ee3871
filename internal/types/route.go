package types

import (
	"fmt"
	"net/url"
	"strings"
)

// RouteStatus represents the lifecycle status of a route.
type RouteStatus string

const (
	// RouteStatusActive - route participates in dispatch
	RouteStatusActive RouteStatus = "active"
	// RouteStatusInactive - route is registered but excluded from dispatch
	RouteStatusInactive RouteStatus = "inactive"
	// RouteStatusMaintenance - route is temporarily withdrawn from dispatch
	RouteStatusMaintenance RouteStatus = "maintenance"
)

// Endpoint represents one network address instance of a backend service.
// Weight is carried for forward compatibility but does not bias selection,
// which is plain round robin.
type Endpoint struct {
	URL      string `json:"url" yaml:"url"`
	Weight   int    `json:"weight" yaml:"weight"`
	IsActive bool   `json:"is_active" yaml:"is_active"`
}

// RouteConfig holds optional per-route overrides. Zero values mean
// "use the gateway default".
type RouteConfig struct {
	// TimeoutMS overrides the forwarding timeout for this service.
	TimeoutMS int `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`

	// RetryCount is carried for configuration compatibility; the dispatcher
	// performs no automatic retries.
	RetryCount int `json:"retry_count,omitempty" yaml:"retry_count,omitempty"`

	// FailureThreshold overrides the circuit breaker trip threshold.
	FailureThreshold int `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty"`

	// ResetTimeoutMS overrides the circuit breaker recovery timeout.
	ResetTimeoutMS int `json:"reset_timeout_ms,omitempty" yaml:"reset_timeout_ms,omitempty"`

	// RateLimitPoints and RateLimitDuration (seconds) override the
	// fixed-window rate limit for requests routed to this service.
	RateLimitPoints   int `json:"rate_limit_points,omitempty" yaml:"rate_limit_points,omitempty"`
	RateLimitDuration int `json:"rate_limit_duration,omitempty" yaml:"rate_limit_duration,omitempty"`
}

// Route binds a path pattern to a backend service's endpoint set.
type Route struct {
	ServiceID   string            `json:"service_id" yaml:"service_id"`
	Name        string            `json:"name" yaml:"name"`
	PathPattern string            `json:"path_pattern" yaml:"path_pattern"`
	Endpoints   []Endpoint        `json:"endpoints" yaml:"endpoints"`
	Status      RouteStatus       `json:"status" yaml:"status"`
	Version     int64             `json:"version" yaml:"version"`
	Config      *RouteConfig      `json:"config,omitempty" yaml:"config,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt   int64             `json:"created_at" yaml:"created_at"`
	UpdatedAt   int64             `json:"updated_at" yaml:"updated_at"`
}

// Validate checks route fields for structural validity.
func (r *Route) Validate() error {
	if r.ServiceID == "" {
		return fmt.Errorf("%w: service_id cannot be empty", ErrValidation)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrValidation)
	}
	if !strings.HasPrefix(r.PathPattern, "/") {
		return fmt.Errorf("%w: path_pattern must start with '/'", ErrValidation)
	}
	if len(r.Endpoints) == 0 {
		return fmt.Errorf("%w: route must have at least one endpoint", ErrValidation)
	}
	for i, ep := range r.Endpoints {
		u, err := url.Parse(ep.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: endpoint %d: invalid url %q", ErrValidation, i, ep.URL)
		}
		if ep.Weight < 0 {
			return fmt.Errorf("%w: endpoint %d: weight cannot be negative", ErrValidation, i)
		}
	}
	switch r.Status {
	case "", RouteStatusActive, RouteStatusInactive, RouteStatusMaintenance:
	default:
		return fmt.Errorf("%w: invalid status %q", ErrValidation, r.Status)
	}
	return nil
}

// ActiveEndpoints returns the endpoints currently flagged as live.
func (r *Route) ActiveEndpoints() []Endpoint {
	active := make([]Endpoint, 0, len(r.Endpoints))
	for _, ep := range r.Endpoints {
		if ep.IsActive {
			active = append(active, ep)
		}
	}
	return active
}

package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ridgegate/ridgegate/internal/circuitbreaker"
	"github.com/ridgegate/ridgegate/internal/config"
	"github.com/ridgegate/ridgegate/internal/loadbalancer"
	"github.com/ridgegate/ridgegate/internal/metrics"
	"github.com/ridgegate/ridgegate/internal/ratelimit"
	"github.com/ridgegate/ridgegate/internal/router"
	"github.com/ridgegate/ridgegate/internal/types"
)

// hop-by-hop and identifying headers are not forwarded; only this set
// crosses the gateway boundary.
var forwardedHeaders = []string{
	"Authorization",
	"Content-Type",
	"User-Agent",
	"X-Request-Id",
	"X-Api-Key",
}

// Dispatcher runs the gateway request pipeline: rate limiting, route
// resolution, circuit breaking, endpoint selection and forwarding.
type Dispatcher struct {
	routes   *router.Store
	limiter  *ratelimit.Limiter
	breakers *circuitbreaker.Manager
	balancer *loadbalancer.RoundRobin
	metrics  *metrics.Metrics
	logger   *zap.Logger

	client         *http.Client
	defaultTimeout time.Duration
}

// NewDispatcher wires the pipeline components together. The outbound
// transport is tuned from proxy configuration; per-request deadlines come
// from route configuration, not the client.
func NewDispatcher(
	cfg *config.ProxyConfig,
	routes *router.Store,
	limiter *ratelimit.Limiter,
	breakers *circuitbreaker.Manager,
	balancer *loadbalancer.RoundRobin,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: cfg.KeepAliveTimeout,
		}).DialContext,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.KeepAliveTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Dispatcher{
		routes:         routes,
		limiter:        limiter,
		breakers:       breakers,
		balancer:       balancer,
		metrics:        m,
		logger:         logger,
		client:         &http.Client{Transport: transport},
		defaultTimeout: cfg.DefaultTimeout,
	}
}

// ServeHTTP dispatches one request through the pipeline.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	// Rate limiting happens before route resolution, so an over-limit
	// client gets 429 even for paths that resolve to nothing.
	clientKey := ratelimit.ClientKey(r)
	res, err := d.limiter.Allow(ctx, clientKey, nil)
	if err != nil {
		d.logger.Error("rate limit check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "rate limit storage unavailable")
		return
	}
	ratelimit.SetHeaders(w, res)
	if !res.Allowed {
		if d.metrics != nil {
			d.metrics.IncRateLimited()
		}
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	route, err := d.routes.Resolve(ctx, r.URL.Path)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no route for path %s", r.URL.Path))
		return
	}

	// Routes can carry a tighter window of their own, scoped per client
	// and service so one service's quota does not drain another's.
	if route.Config != nil && route.Config.RateLimitPoints > 0 {
		scoped := clientKey + "|" + route.ServiceID
		res, err = d.limiter.Allow(ctx, scoped, route.Config)
		if err != nil {
			d.logger.Error("route rate limit check failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "rate limit storage unavailable")
			return
		}
		ratelimit.SetHeaders(w, res)
		if !res.Allowed {
			if d.metrics != nil {
				d.metrics.IncRateLimited()
			}
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	if err := d.breakers.Check(route.ServiceID, route.Config); err != nil {
		d.observe(route.ServiceID, http.StatusServiceUnavailable, start)
		writeError(w, http.StatusServiceUnavailable,
			fmt.Sprintf("service %s is temporarily unavailable", route.ServiceID))
		return
	}

	target, err := d.balancer.Pick(ctx, route.ServiceID)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, types.ErrNotFound) {
			status = http.StatusNotFound
		}
		d.observe(route.ServiceID, status, start)
		writeError(w, status, fmt.Sprintf("service %s has no live endpoints", route.ServiceID))
		return
	}

	d.forward(w, r, route, target, start)
}

// forward sends the request upstream and relays the response. A transport
// failure, an upstream 404 or any 5xx counts against the service's breaker
// and surfaces as 503; every other upstream status passes through as is.
func (d *Dispatcher) forward(w http.ResponseWriter, r *http.Request, route *types.Route, target string, start time.Time) {
	timeout := d.defaultTimeout
	if route.Config != nil && route.Config.TimeoutMS > 0 {
		timeout = time.Duration(route.Config.TimeoutMS) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	outURL := strings.TrimSuffix(target, "/") + rewritePath(r.URL.Path)
	if r.URL.RawQuery != "" {
		outURL += "?" + r.URL.RawQuery
	}

	out, err := http.NewRequestWithContext(ctx, r.Method, outURL, r.Body)
	if err != nil {
		d.observe(route.ServiceID, http.StatusBadGateway, start)
		writeError(w, http.StatusBadGateway, "failed to build upstream request")
		return
	}
	for _, h := range forwardedHeaders {
		if v := r.Header.Get(h); v != "" {
			out.Header.Set(h, v)
		}
	}
	out.ContentLength = r.ContentLength

	resp, err := d.client.Do(out)
	if err != nil {
		d.breakers.RecordError(route.ServiceID, route.Config)
		d.logger.Warn("upstream request failed",
			zap.String("service_id", route.ServiceID),
			zap.String("target", target),
			zap.Error(err))
		d.observe(route.ServiceID, http.StatusServiceUnavailable, start)
		writeError(w, http.StatusServiceUnavailable,
			fmt.Sprintf("service %s did not respond", route.ServiceID))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode >= http.StatusInternalServerError {
		d.breakers.RecordError(route.ServiceID, route.Config)
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		d.observe(route.ServiceID, http.StatusServiceUnavailable, start)
		writeError(w, http.StatusServiceUnavailable,
			fmt.Sprintf("service %s returned %d", route.ServiceID, resp.StatusCode))
		return
	}

	d.breakers.RecordSuccess(route.ServiceID)
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		d.logger.Warn("response relay interrupted",
			zap.String("service_id", route.ServiceID),
			zap.Error(err))
	}
	d.observe(route.ServiceID, resp.StatusCode, start)
}

// rewritePath strips the routing prefix, the first path segment, before
// forwarding. "/users/42/orders" reaches the users service as "/42/orders".
func rewritePath(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.Index(trimmed, "/"); i >= 0 {
		return trimmed[i:]
	}
	return "/"
}

func (d *Dispatcher) observe(serviceID string, status int, start time.Time) {
	if d.metrics == nil {
		return
	}
	d.metrics.ObserveRequest(serviceID, strconv.Itoa(status), time.Since(start).Seconds())
}

// CheckHealth probes every registered service and aggregates the results.
// The gateway itself always reports up; any down service degrades the
// overall status.
func (d *Dispatcher) CheckHealth(ctx context.Context) (*types.HealthReport, error) {
	routes, err := d.routes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}

	report := &types.HealthReport{
		Status: types.HealthStatusOK,
		Info: map[string]types.ServiceHealth{
			"gateway": {Status: types.ServiceStatusUp},
		},
		Details: make(map[string]types.ServiceHealth),
	}
	for _, route := range routes {
		health := types.ServiceHealth{Status: types.ServiceStatusUp}
		urls, err := d.routes.ActiveEndpoints(ctx, route.ServiceID)
		if err != nil || len(urls) == 0 {
			health.Status = types.ServiceStatusDown
			if err != nil {
				health.Error = err.Error()
			} else {
				health.Error = "no live endpoints"
			}
			report.Status = types.HealthStatusDegraded
		}
		report.Info[route.ServiceID] = types.ServiceHealth{Status: health.Status}
		report.Details[route.ServiceID] = health
	}
	return report, nil
}

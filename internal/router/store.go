package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ridgegate/ridgegate/internal/config"
	"github.com/ridgegate/ridgegate/internal/types"
	"github.com/ridgegate/ridgegate/pkg/store"
)

const routeKeyPrefix = "routes/"

// compiledRoute pairs a route with its compiled path pattern so resolution
// never recompiles on the hot path.
type compiledRoute struct {
	route   *types.Route
	pattern *Pattern
}

// Store owns route definitions: CRUD against the durable backend and
// path-to-route resolution over an in-memory live index. The index holds
// only ACTIVE routes and is rebuilt from durable storage before each
// resolution, then swapped atomically so readers never observe a partially
// populated index.
type Store struct {
	durable store.Store
	prober  Prober
	cfg     *config.RoutesConfig
	logger  *zap.Logger

	mu    sync.RWMutex
	index []*compiledRoute
}

// RoutePatch represents a partial route update. Nil fields are untouched.
type RoutePatch struct {
	Name        *string            `json:"name,omitempty"`
	PathPattern *string            `json:"path_pattern,omitempty"`
	Endpoints   []types.Endpoint   `json:"endpoints,omitempty"`
	Status      *types.RouteStatus `json:"status,omitempty"`
	Config      *types.RouteConfig `json:"config,omitempty"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
}

// NewStore creates a route store over the given durable backend.
func NewStore(durable store.Store, prober Prober, cfg *config.RoutesConfig, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		durable: durable,
		prober:  prober,
		cfg:     cfg,
		logger:  logger,
	}
}

func routeKey(serviceID string) string {
	return routeKeyPrefix + serviceID
}

func (s *Store) probeTimeout() time.Duration {
	if s.cfg.ProbeTimeout > 0 {
		return s.cfg.ProbeTimeout
	}
	return 5 * time.Second
}

// Create registers a new route. Fails with types.ErrAlreadyExists when the
// service ID is taken. In strict mode every candidate endpoint is probed;
// endpoints that fail are demoted to inactive before persistence, and a
// route left with zero live endpoints is rejected with types.ErrUnavailable
// without being persisted.
func (s *Store) Create(ctx context.Context, route *types.Route) (*types.Route, error) {
	if err := route.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.durable.Exists(ctx, routeKey(route.ServiceID))
	if err != nil {
		return nil, fmt.Errorf("failed to check route %s: %w", route.ServiceID, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: route %s", types.ErrAlreadyExists, route.ServiceID)
	}

	if route.Status == "" {
		route.Status = types.RouteStatusActive
	}
	// Endpoints register live; probing owns the flag from here on.
	for i := range route.Endpoints {
		route.Endpoints[i].IsActive = true
		if route.Endpoints[i].Weight == 0 {
			route.Endpoints[i].Weight = 1
		}
	}

	if s.cfg.StrictRegistration {
		live := 0
		for i := range route.Endpoints {
			probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout())
			err := s.prober.Probe(probeCtx, route.Endpoints[i].URL)
			cancel()
			if err != nil {
				s.logger.Warn("endpoint failed registration probe",
					zap.String("service_id", route.ServiceID),
					zap.String("url", route.Endpoints[i].URL),
					zap.Error(err))
				route.Endpoints[i].IsActive = false
				continue
			}
			live++
		}
		if live == 0 {
			return nil, fmt.Errorf("%w: no endpoint of route %s answered the liveness probe",
				types.ErrUnavailable, route.ServiceID)
		}
	}

	now := time.Now().Unix()
	route.Version = 1
	route.CreatedAt = now
	route.UpdatedAt = now

	if err := s.persist(ctx, route); err != nil {
		return nil, err
	}
	s.refreshQuiet(ctx)

	s.logger.Info("route created",
		zap.String("service_id", route.ServiceID),
		zap.String("path_pattern", route.PathPattern),
		zap.Int("endpoints", len(route.Endpoints)))
	return route, nil
}

// Update merges a patch into an existing route, bumps the version and
// re-indexes by the resulting status.
func (s *Store) Update(ctx context.Context, serviceID string, patch *RoutePatch) (*types.Route, error) {
	route, err := s.Get(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		route.Name = *patch.Name
	}
	if patch.PathPattern != nil {
		route.PathPattern = *patch.PathPattern
	}
	if patch.Endpoints != nil {
		route.Endpoints = patch.Endpoints
	}
	if patch.Status != nil {
		route.Status = *patch.Status
	}
	if patch.Config != nil {
		route.Config = patch.Config
	}
	if patch.Metadata != nil {
		route.Metadata = patch.Metadata
	}

	if err := route.Validate(); err != nil {
		return nil, err
	}

	route.Version++
	route.UpdatedAt = time.Now().Unix()

	if err := s.persist(ctx, route); err != nil {
		return nil, err
	}
	s.refreshQuiet(ctx)

	s.logger.Info("route updated",
		zap.String("service_id", serviceID),
		zap.Int64("version", route.Version),
		zap.String("status", string(route.Status)))
	return route, nil
}

// Delete removes a route from durable storage and the live index.
func (s *Store) Delete(ctx context.Context, serviceID string) error {
	if err := s.durable.Delete(ctx, routeKey(serviceID)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: route %s", types.ErrNotFound, serviceID)
		}
		return fmt.Errorf("failed to delete route %s: %w", serviceID, err)
	}
	s.refreshQuiet(ctx)

	s.logger.Info("route deleted", zap.String("service_id", serviceID))
	return nil
}

// Get reads a single route from durable storage.
func (s *Store) Get(ctx context.Context, serviceID string) (*types.Route, error) {
	data, err := s.durable.Get(ctx, routeKey(serviceID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: route %s", types.ErrNotFound, serviceID)
		}
		return nil, fmt.Errorf("failed to load route %s: %w", serviceID, err)
	}

	var route types.Route
	if err := json.Unmarshal(data, &route); err != nil {
		return nil, fmt.Errorf("failed to decode route %s: %w", serviceID, err)
	}
	return &route, nil
}

// List returns all registered routes regardless of status.
func (s *Store) List(ctx context.Context) ([]*types.Route, error) {
	entries, err := s.durable.List(ctx, routeKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}

	routes := make([]*types.Route, 0, len(entries))
	for key, data := range entries {
		var route types.Route
		if err := json.Unmarshal(data, &route); err != nil {
			s.logger.Warn("skipping undecodable route entry", zap.String("key", key), zap.Error(err))
			continue
		}
		routes = append(routes, &route)
	}
	return routes, nil
}

// Refresh rebuilds the live index from durable storage and swaps it in
// atomically. On load failure the previous index is kept so resolution
// keeps serving from the last good snapshot.
func (s *Store) Refresh(ctx context.Context) error {
	routes, err := s.List(ctx)
	if err != nil {
		return err
	}

	index := make([]*compiledRoute, 0, len(routes))
	for _, route := range routes {
		if route.Status != types.RouteStatusActive {
			continue
		}
		pattern, err := CompilePattern(route.PathPattern)
		if err != nil {
			s.logger.Warn("skipping route with invalid pattern",
				zap.String("service_id", route.ServiceID), zap.Error(err))
			continue
		}
		index = append(index, &compiledRoute{route: route, pattern: pattern})
	}

	s.mu.Lock()
	s.index = index
	s.mu.Unlock()
	return nil
}

// refreshQuiet refreshes the index and only logs on failure; mutation paths
// must not fail because the follow-up index rebuild did.
func (s *Store) refreshQuiet(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil {
		s.logger.Error("live index refresh failed, keeping previous index", zap.Error(err))
	}
}

// Resolve finds the route whose pattern matches the request path. The index
// is refreshed from durable storage first (read-through); the first match
// in index iteration order wins. Returns types.ErrNotFound when nothing
// matches.
func (s *Store) Resolve(ctx context.Context, path string) (*types.Route, error) {
	s.refreshQuiet(ctx)

	s.mu.RLock()
	index := s.index
	s.mu.RUnlock()

	for _, entry := range index {
		if entry.pattern.Match(path) {
			return entry.route, nil
		}
	}
	return nil, fmt.Errorf("%w: no route matches path %s", types.ErrNotFound, path)
}

// ActiveEndpoints returns the URLs of endpoints that are flagged live AND
// answer a probe right now. Fails with types.ErrNotFound for an unknown
// service and types.ErrUnavailable when the confirmed-live set is empty.
func (s *Store) ActiveEndpoints(ctx context.Context, serviceID string) ([]string, error) {
	route, err := s.Get(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	candidates := route.ActiveEndpoints()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: route %s has no active endpoints", types.ErrUnavailable, serviceID)
	}

	type probeResult struct {
		idx int
		ok  bool
	}
	results := make(chan probeResult, len(candidates))
	var wg sync.WaitGroup
	for i, ep := range candidates {
		wg.Add(1)
		go func(idx int, url string) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout())
			defer cancel()
			results <- probeResult{idx: idx, ok: s.prober.Probe(probeCtx, url) == nil}
		}(i, ep.URL)
	}
	wg.Wait()
	close(results)

	confirmed := make([]bool, len(candidates))
	for r := range results {
		confirmed[r.idx] = r.ok
	}

	// Preserve declaration order so round-robin selection stays stable.
	urls := make([]string, 0, len(candidates))
	for i, ep := range candidates {
		if confirmed[i] {
			urls = append(urls, ep.URL)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: no endpoint of route %s is reachable", types.ErrUnavailable, serviceID)
	}
	return urls, nil
}

func (s *Store) persist(ctx context.Context, route *types.Route) error {
	data, err := json.Marshal(route)
	if err != nil {
		return fmt.Errorf("failed to encode route %s: %w", route.ServiceID, err)
	}
	if err := s.durable.Put(ctx, routeKey(route.ServiceID), data); err != nil {
		return fmt.Errorf("failed to store route %s: %w", route.ServiceID, err)
	}
	return nil
}

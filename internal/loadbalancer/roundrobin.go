package loadbalancer

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ridgegate/ridgegate/internal/types"
)

// EndpointSource supplies the live endpoint URLs for a service. The router
// store implements it by probing the service's registered endpoints.
type EndpointSource interface {
	ActiveEndpoints(ctx context.Context, serviceID string) ([]string, error)
}

// cursor tracks round-robin position for one service. The URL snapshot is
// kept only so a shrinking endpoint list can clamp the index instead of
// skipping targets.
type cursor struct {
	index int
	urls  []string
}

// RoundRobin distributes requests across a service's live endpoints in
// rotation. Position is tracked per service and survives endpoint list
// changes, wrapping modulo the new list length.
type RoundRobin struct {
	source EndpointSource
	logger *zap.Logger

	mu      sync.Mutex
	cursors map[string]*cursor
}

// NewRoundRobin creates a balancer over the given endpoint source.
func NewRoundRobin(source EndpointSource, logger *zap.Logger) *RoundRobin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoundRobin{
		source:  source,
		logger:  logger,
		cursors: make(map[string]*cursor),
	}
}

// Pick returns the next endpoint URL for the service. The live endpoint
// list is refreshed from the source on every call, so endpoints that went
// down since the last pick are never returned.
func (rr *RoundRobin) Pick(ctx context.Context, serviceID string) (string, error) {
	urls, err := rr.source.ActiveEndpoints(ctx, serviceID)
	if err != nil {
		return "", err
	}
	if len(urls) == 0 {
		return "", fmt.Errorf("%w: no live endpoints for service %s", types.ErrUnavailable, serviceID)
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()

	c, ok := rr.cursors[serviceID]
	if !ok {
		c = &cursor{}
		rr.cursors[serviceID] = c
	}

	// A changed list keeps the rotation going from the clamped position
	// rather than restarting at zero.
	if c.index >= len(urls) {
		c.index = c.index % len(urls)
	}
	picked := urls[c.index]
	c.index = (c.index + 1) % len(urls)
	c.urls = urls

	rr.logger.Debug("endpoint picked",
		zap.String("service_id", serviceID),
		zap.String("endpoint", picked),
		zap.Int("live_count", len(urls)))
	return picked, nil
}

// Clear drops the rotation state for one service.
func (rr *RoundRobin) Clear(serviceID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	delete(rr.cursors, serviceID)
}

// ClearAll drops all rotation state.
func (rr *RoundRobin) ClearAll() {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.cursors = make(map[string]*cursor)
}

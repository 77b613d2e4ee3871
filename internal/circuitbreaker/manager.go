package circuitbreaker

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ridgegate/ridgegate/internal/types"
)

// Status is a point-in-time snapshot of a breaker.
type Status struct {
	State        string `json:"state"`
	FailureCount int    `json:"failureCount"`
}

// Manager tracks one breaker per service, created lazily on first use.
// Per-route configuration overrides the manager defaults and is captured
// when the breaker is created.
type Manager struct {
	defaults Config
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.RWMutex
	breakers map[string]*Breaker

	// onStateChange is invoked after a recorded outcome changes a
	// breaker's state. Used to feed metrics.
	onStateChange func(serviceID string, state State)
}

// NewManager creates a breaker manager with the given default configuration.
func NewManager(defaults Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.FailureThreshold <= 0 {
		defaults.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if defaults.ResetTimeout <= 0 {
		defaults.ResetTimeout = DefaultConfig().ResetTimeout
	}
	return &Manager{
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
		breakers: make(map[string]*Breaker),
	}
}

// OnStateChange registers a callback fired on every breaker state change.
func (m *Manager) OnStateChange(fn func(serviceID string, state State)) {
	m.onStateChange = fn
}

// SetClock overrides the time source for every breaker created afterwards.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// breakerFor returns the breaker for a service, creating it on first use.
// Route-level overrides only apply at creation time.
func (m *Manager) breakerFor(serviceID string, override *types.RouteConfig) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[serviceID]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.breakers[serviceID]; ok {
		return b
	}

	cfg := m.defaults
	if override != nil {
		if override.FailureThreshold > 0 {
			cfg.FailureThreshold = override.FailureThreshold
		}
		if override.ResetTimeoutMS > 0 {
			cfg.ResetTimeout = time.Duration(override.ResetTimeoutMS) * time.Millisecond
		}
	}
	b = newBreaker(cfg, m.now)
	m.breakers[serviceID] = b
	return b
}

// Check gates a request for the given service.
func (m *Manager) Check(serviceID string, override *types.RouteConfig) error {
	b := m.breakerFor(serviceID, override)
	before := b.State()
	err := b.Check()
	after := b.State()
	if before != after {
		m.stateChanged(serviceID, before, after)
	}
	return err
}

// RecordSuccess records a successful upstream outcome for the service.
func (m *Manager) RecordSuccess(serviceID string) {
	b := m.breakerFor(serviceID, nil)
	before := b.State()
	after := b.RecordSuccess()
	if before != after {
		m.stateChanged(serviceID, before, after)
	}
}

// RecordError records a failed upstream outcome for the service.
func (m *Manager) RecordError(serviceID string, override *types.RouteConfig) {
	b := m.breakerFor(serviceID, override)
	before := b.State()
	after := b.RecordError()
	if before != after {
		m.stateChanged(serviceID, before, after)
	}
}

// Status reports the state of the breaker for a service. Services that have
// never been dispatched report as closed.
func (m *Manager) Status(serviceID string) Status {
	m.mu.RLock()
	b, ok := m.breakers[serviceID]
	m.mu.RUnlock()
	if !ok {
		return Status{State: StateClosed.String()}
	}
	return Status{
		State:        b.State().String(),
		FailureCount: b.FailureCount(),
	}
}

// Reset forces the breaker for a service closed, if one exists.
func (m *Manager) Reset(serviceID string) {
	m.mu.RLock()
	b, ok := m.breakers[serviceID]
	m.mu.RUnlock()
	if ok {
		b.Reset()
	}
}

// ResetAll closes every tracked breaker.
func (m *Manager) ResetAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.breakers {
		b.Reset()
	}
}

// Remove drops the breaker for a service, typically after route deletion.
func (m *Manager) Remove(serviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breakers, serviceID)
}

func (m *Manager) stateChanged(serviceID string, from, to State) {
	m.logger.Info("circuit breaker state changed",
		zap.String("service_id", serviceID),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
	if m.onStateChange != nil {
		m.onStateChange(serviceID, to)
	}
}

package circuitbreaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/ridgegate/ridgegate/internal/types"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed - requests pass through normally
	StateClosed State = iota
	// StateOpen - requests fail fast
	StateOpen
	// StateHalfOpen - a trial request is allowed through
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config represents circuit breaker configuration.
type Config struct {
	// FailureThreshold is the failure count that trips the breaker open.
	FailureThreshold int `yaml:"failure_threshold"`

	// ResetTimeout is how long an open breaker rejects before allowing a
	// trial request.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// DefaultConfig returns the default breaker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
	}
}

// Breaker is the failure-gating state machine for a single service.
// State lives in process memory only and is mutated exclusively through
// the breaker's own operations.
type Breaker struct {
	mu           sync.Mutex
	config       Config
	state        State
	failureCount int
	lastFailure  *time.Time
	now          func() time.Time
}

// newBreaker creates a closed breaker. The clock is injectable for tests.
func newBreaker(config Config, now func() time.Time) *Breaker {
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		config: config,
		state:  StateClosed,
		now:    now,
	}
}

// Check gates a request. An open breaker whose reset timeout has elapsed
// lazily transitions to half-open and lets the request through; an open
// breaker inside the timeout fails with types.ErrUnavailable. There is no
// background timer; this lazy evaluation is the only open-to-half-open
// path.
func (b *Breaker) Check() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if b.lastFailure != nil && b.now().Sub(*b.lastFailure) >= b.config.ResetTimeout {
		b.state = StateHalfOpen
		return nil
	}
	return fmt.Errorf("%w: circuit breaker is open", types.ErrUnavailable)
}

// RecordSuccess restores the breaker to closed with a clean slate.
func (b *Breaker) RecordSuccess() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failureCount = 0
	b.lastFailure = nil
	return b.state
}

// RecordError counts a failure and stamps its time. Reaching the threshold
// trips the breaker open in any state, so repeated failures while open or
// half-open keep it open and re-arm the reset clock.
func (b *Breaker) RecordError() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	t := b.now()
	b.lastFailure = &t
	if b.failureCount >= b.config.FailureThreshold {
		b.state = StateOpen
	}
	return b.state
}

// State returns the current state without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the current consecutive failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// Reset forces the breaker closed with zero failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failureCount = 0
	b.lastFailure = nil
}

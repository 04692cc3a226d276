package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without calling fn while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // successes in half-open before closing
	Timeout          time.Duration // time spent open before probing

	// OnStateChange, if set, is called after every transition with the lock released.
	OnStateChange func(name string, to State)
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	name     string
	config   Config
	now      func() time.Time
	mu       sync.Mutex
	state    State
	failures int
	success  int
	openedAt time.Time
}

// New creates a new circuit breaker
func New(name string, config Config) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		config: config,
		now:    time.Now,
		state:  StateClosed,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Allow reports whether a call may go through right now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	changed := cb.advance()
	state := cb.state
	cb.mu.Unlock()
	cb.notify(changed, state)
	return state != StateOpen
}

// Execute executes fn with circuit breaker protection
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.Allow() {
		return ErrOpen
	}
	err := fn(ctx)
	cb.Record(err)
	return err
}

// Record feeds the outcome of a call into the breaker.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	prev := cb.state
	if err != nil {
		cb.failures++
		cb.success = 0
		if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.openedAt = cb.now()
		}
	} else {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.success++
			if cb.success >= cb.config.SuccessThreshold {
				cb.state = StateClosed
				cb.success = 0
			}
		}
	}
	state := cb.state
	cb.mu.Unlock()
	cb.notify(prev != state, state)
}

// advance moves an expired open breaker to half-open. Caller holds mu.
func (cb *CircuitBreaker) advance() bool {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.config.Timeout {
		cb.state = StateHalfOpen
		cb.success = 0
		return true
	}
	return false
}

func (cb *CircuitBreaker) notify(changed bool, state State) {
	if changed && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, state)
	}
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns circuit breaker statistics
func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]interface{}{
		"name":      cb.name,
		"state":     cb.state.String(),
		"failures":  cb.failures,
		"opened_at": cb.openedAt,
	}
}

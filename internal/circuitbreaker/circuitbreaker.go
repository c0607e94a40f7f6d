// Package circuitbreaker protects the model backends from cascading
// failure. A provider whose streams keep failing is cut off for a
// cooldown window instead of being hammered with doomed requests.
//
// States: Closed (normal), Open (failing fast), Half-Open (probing
// recovery).
package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/prosegate/prosegate/internal/domain"
	"github.com/prosegate/prosegate/internal/metrics"
)

// State represents the current state of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config defines breaker behavior.
type Config struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // half-open successes needed to close
	Timeout          time.Duration // open duration before probing
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// Breaker is a single provider's circuit breaker.
type Breaker struct {
	mu          sync.RWMutex
	name        string
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	config      Config
}

func New(cfg Config) *Breaker {
	return &Breaker{state: StateClosed, config: cfg}
}

// setState transitions the breaker and, when the breaker is named,
// publishes the new state to the breaker gauge. Callers hold b.mu.
func (b *Breaker) setState(state State) {
	b.state = state
	if b.name != "" {
		metrics.SetCircuitBreakerState(b.name, int(state))
	}
}

// Allow reports whether a request may proceed. An open breaker past its
// timeout transitions to half-open and admits the probe.
func (b *Breaker) Allow(ctx context.Context) error {
	b.mu.RLock()
	state := b.state
	lastFailure := b.lastFailure
	b.mu.RUnlock()

	switch state {
	case StateOpen:
		if time.Since(lastFailure) > b.config.Timeout {
			b.mu.Lock()
			if b.state == StateOpen {
				b.setState(StateHalfOpen)
				b.successes = 0
			}
			b.mu.Unlock()
			return nil
		}
		return domain.ErrCircuitBreakerOpen
	default:
		return nil
	}
}

func (b *Breaker) RecordSuccess(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.setState(StateClosed)
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *Breaker) RecordFailure(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = time.Now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.setState(StateOpen)
		b.successes = 0
	}
}

func (b *Breaker) State(ctx context.Context) State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Manager hands out one breaker per provider, created on first use.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		breakers: make(map[string]*Breaker),
		config:   cfg,
	}
}

func (m *Manager) Get(providerID string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[providerID]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[providerID]; ok {
		return b
	}
	b = New(m.config)
	b.name = providerID
	metrics.SetCircuitBreakerState(providerID, int(StateClosed))
	m.breakers[providerID] = b
	return b
}

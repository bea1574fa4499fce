// Package health implements the Health & Optimization Shell (spec section
// 4.D): a per-provider/tool circuit breaker, round-robin load balancer,
// invocation batcher, online latency predictor, and the strategy selector
// that ties them together ahead of each invocation.
//
// The circuit breaker is adapted from the teacher's four-file
// internal/circuitbreaker implementation (EnterpriseCircuitBreaker, its
// State machine, half-open trial budget, and force-open/force-close
// overrides), trimmed to the three-state behavior spec.md section 4.D
// actually calls for: closed, open, half-open.
package health

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PayRpc/a2a-fabric/internal/metrics"
)

// State is the circuit breaker's current posture.
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

// CircuitBreakerConfig configures a single breaker instance (spec section
// 4.D: failureThreshold default 5, resetTimeout default 30s).
type CircuitBreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration

	// HalfOpenMaxCalls caps how many trial calls may be in flight while the
	// breaker is half-open, carried over from the teacher's half-open trial
	// budget. spec.md pins the steady-state case to one trial; this only
	// matters when callers race Allow() concurrently during that window.
	HalfOpenMaxCalls int
}

// DefaultCircuitBreakerConfig returns the spec's stated defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker guards a single provider or tool. Safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	name    string
	cfg     CircuitBreakerConfig
	logger  *zap.Logger
	metrics *metrics.Registry

	state               State
	consecutiveFailures int
	openedAt            time.Time
	halfOpenCalls       int
}

// NewCircuitBreaker constructs a breaker for name, starting closed. m may be
// nil, in which case state changes are not exported as metrics.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, logger *zap.Logger, m *metrics.Registry) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultCircuitBreakerConfig().FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultCircuitBreakerConfig().ResetTimeout
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = DefaultCircuitBreakerConfig().HalfOpenMaxCalls
	}
	return &CircuitBreaker{
		name:    name,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		state:   StateClosed,
	}
}

// Allow reports whether a call may proceed. An open breaker transitions
// itself to half-open once resetTimeout has elapsed since it opened, and
// admits up to HalfOpenMaxCalls trial calls while half-open.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.cfg.HalfOpenMaxCalls {
			return false
		}
		cb.halfOpenCalls++
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.cfg.ResetTimeout {
			cb.transition(StateHalfOpen)
			cb.halfOpenCalls++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess reports a successful call. In half-open it closes the
// breaker; in closed it resets the consecutive-failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
}

// RecordFailure reports a failed call. In half-open it reopens the breaker
// immediately. In closed it opens only on the failureThreshold-th
// consecutive failure (spec section 8 boundary behavior), not sooner.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.transition(StateOpen)
		return
	}

	cb.consecutiveFailures++
	if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateOpen {
		cb.openedAt = time.Now()
		cb.consecutiveFailures = 0
	}
	if to == StateHalfOpen {
		cb.halfOpenCalls = 0
	}
	if cb.logger != nil {
		cb.logger.Info("circuit breaker state change",
			zap.String("name", cb.name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	if cb.metrics != nil {
		cb.metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(stateGaugeValue(to))
	}
}

func stateGaugeValue(s State) float64 {
	switch s {
	case StateClosed:
		return 0
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return -1
	}
}

// State returns the breaker's current state without mutating it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Registry owns one CircuitBreaker per provider/tool name, created
// lazily on first use.
type Registry struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	logger   *zap.Logger
	metrics  *metrics.Registry
	breakers map[string]*CircuitBreaker
}

// NewRegistry constructs a circuit breaker registry sharing cfg across
// every lazily-created breaker. m may be nil.
func NewRegistry(cfg CircuitBreakerConfig, logger *zap.Logger, m *metrics.Registry) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it if absent.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[name]
	if !ok {
		cb = NewCircuitBreaker(name, r.cfg, r.logger, r.metrics)
		r.breakers[name] = cb
	}
	return cb
}

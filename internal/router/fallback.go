package router

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PayRpc/a2a-fabric/internal/config"
	aerrors "github.com/PayRpc/a2a-fabric/internal/errors"
	"github.com/PayRpc/a2a-fabric/internal/health"
	"github.com/PayRpc/a2a-fabric/internal/lifecycle"
	"github.com/PayRpc/a2a-fabric/internal/metrics"
	"github.com/PayRpc/a2a-fabric/internal/throttle"
)

// Router is the Router & Fallback Core's public contract (spec section
// 4.C): generate, generateStream, getRoutingDecision, metrics, health.
// Grounded on the tokenhub Engine's eligibility + scoring + escalation
// flow in RouteAndSend, adapted to spec.md's fallback-chain + single
// emergency-attempt semantics (spec section 4.C "fallback chain",
// section 8 scenario 3).
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider

	strategy          config.RoutingStrategy
	fallbackChain     []string
	emergencyFallback string
	maxRetries        int
	backoffKind       config.BackoffKind
	retryBaseDelay    time.Duration
	cacheKeyStrategy  config.CacheKeyStrategy
	cacheTTL          time.Duration
	defaultLatencyMs  int

	cache   *Cache
	limiter *throttle.TierLimiter

	breakers  *health.Registry
	predictor *health.LatencyPredictor
	selector  *health.Selector

	logger  *zap.Logger
	metrics *metrics.Registry
	sink    lifecycle.Sink

	totalRequests  int64
	cacheHits      int64
	cacheMisses    int64
	fallbackCount  int64
	emergencyCount int64
	providerCalls  map[string]int64
}

// New constructs a Router from cfg (spec section 6 "configuration").
func New(cfg config.Config, logger *zap.Logger, reg *metrics.Registry, sink lifecycle.Sink) *Router {
	if sink == nil {
		sink = lifecycle.NopSink{}
	}
	return &Router{
		providers:         make(map[string]Provider),
		strategy:          cfg.RoutingStrategy,
		fallbackChain:     append([]string(nil), cfg.FallbackChain...),
		emergencyFallback: cfg.EmergencyFallback,
		maxRetries:        cfg.MaxRetries,
		backoffKind:       cfg.BackoffKind,
		retryBaseDelay:    cfg.RetryDelay,
		cacheKeyStrategy:  cfg.CacheKeyStrategy,
		cacheTTL:          cfg.CacheTTL,
		defaultLatencyMs:  cfg.LatencyTargetMs,
		cache:             NewCache(cfg.CacheMaxEntries, CacheStrategyLRU),
		limiter:           throttle.NewTierLimiter(cfg.TierLimits),
		logger:            logger,
		metrics:           reg,
		sink:              sink,
		providerCalls:     make(map[string]int64),
	}
}

// WireShell attaches the Shell's health components (spec section 4.D) to the
// router: a circuit breaker registry gating dispatch per provider, a
// strategy selector evaluated ahead of each dispatch, and a latency
// predictor trained on every completed request. Any argument may be nil, in
// which case that component is skipped (used by tests that construct a bare
// Router via New).
func (r *Router) WireShell(breakers *health.Registry, predictor *health.LatencyPredictor, selector *health.Selector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers = breakers
	r.predictor = predictor
	r.selector = selector
}

// RegisterProvider adds or replaces a provider by id.
func (r *Router) RegisterProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

// UnregisterProvider removes a provider by id.
func (r *Router) UnregisterProvider(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, id)
}

// GetRoutingDecision scores eligible providers for req without dispatching
// (spec section 4.C public contract).
func (r *Router) GetRoutingDecision(req Request) (Decision, error) {
	r.mu.RLock()
	if req.LatencyTargetMs == 0 {
		req.LatencyTargetMs = r.defaultLatencyMs
	}
	candidates := r.candidateList(req)
	strategy := r.strategy
	r.mu.RUnlock()

	ranked := rankProviders(candidates, strategy, req)
	if len(ranked) == 0 {
		return Decision{}, aerrors.New(aerrors.TypeRouting, "router", "no eligible provider for request")
	}
	return ranked[0], nil
}

func (r *Router) candidateList(req Request) []Provider {
	if req.PreferredProvider != "" {
		if p, ok := r.providers[req.PreferredProvider]; ok {
			return []Provider{p}
		}
	}
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}

// Generate dispatches req through the fingerprint cache, then the
// fallback chain, then the emergency fallback (spec section 4.C "fallback
// chain"). Streaming requests never consult the cache (spec section 4.C
// "cached responses MUST NOT be returned for streaming requests").
func (r *Router) Generate(ctx context.Context, req Request) (Response, error) {
	if req.UserTier != "" {
		if err := r.limiter.Admit(req.UserTier); err != nil {
			return Response{}, err
		}
	}

	r.incrTotal()

	if !req.Streaming {
		if resp, ok := r.lookupCache(req); ok {
			r.metrics.RoutingDecisions.WithLabelValues(resp.ProviderID, "true").Inc()
			return resp, nil
		}
	}

	start := time.Now()
	resp, err := r.dispatchWithFallback(ctx, req)
	if err != nil {
		return Response{}, err
	}

	if r.predictor != nil {
		r.predictor.Record(health.LatencySample{
			PromptLength:  len(req.Prompt),
			HasMultimodal: len(req.MultimodalHandles) > 0,
			MaxTokens:     req.MaxTokens,
			ObservedMs:    float64(time.Since(start).Milliseconds()),
		})
	}

	if !req.Streaming {
		r.storeCache(req, resp)
	}
	return resp, nil
}

func (r *Router) lookupCache(req Request) (Response, bool) {
	key := fingerprint(req, r.cacheKeyStrategy)
	if resp, ok := r.cache.Get(key); ok {
		r.incrCacheHit()
		r.metrics.CacheHits.WithLabelValues(string(r.cacheKeyStrategy)).Inc()
		return resp, true
	}
	if fallbackKey := fingerprintFallback(req, r.cacheKeyStrategy); fallbackKey != "" {
		if resp, ok := r.cache.Get(fallbackKey); ok {
			r.incrCacheHit()
			r.metrics.CacheHits.WithLabelValues(string(r.cacheKeyStrategy)).Inc()
			return resp, true
		}
	}
	r.incrCacheMiss()
	r.metrics.CacheMisses.WithLabelValues(string(r.cacheKeyStrategy)).Inc()
	return Response{}, false
}

func (r *Router) storeCache(req Request, resp Response) {
	key := fingerprint(req, r.cacheKeyStrategy)
	r.cache.Set(key, resp, r.cacheTTL)
}

// dispatchWithFallback runs the primary decision, then walks the fallback
// chain on retryable failure, then at most one emergency attempt (spec
// section 4.C steps 1-4, section 8 scenario 3, and invariant "emergency
// fallback tried at most once per logical request"). Each step down the
// chain counts against maxRetries; retrying does NOT re-attempt the same
// provider, it advances to the next one in the chain.
func (r *Router) dispatchWithFallback(ctx context.Context, req Request) (Response, error) {
	decision, err := r.GetRoutingDecision(req)
	if err != nil {
		return Response{}, err
	}

	chain := append([]string{decision.ProviderID}, r.fallbackChain...)

	var lastErr error
	for attempt := 0; attempt < len(chain); attempt++ {
		if attempt > r.maxRetries {
			break
		}
		if attempt > 0 {
			delay := r.backoffDelay(attempt)
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(delay):
			}
			r.incrFallback()
		}

		resp, err := r.invokeProvider(chain[attempt], req)
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		if attempt > 0 {
			r.metrics.FallbackInvocations.WithLabelValues(chain[attempt], outcome).Inc()
		} else {
			r.metrics.RoutingDecisions.WithLabelValues(chain[attempt], "false").Inc()
		}
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !aerrors.IsRetryable(err) {
			return Response{}, err
		}
	}

	if r.emergencyFallback != "" {
		r.logger.Warn("falling back to emergency provider", zap.String("provider", r.emergencyFallback), zap.Error(lastErr))
		r.incrEmergency()
		resp, err := r.invokeProvider(r.emergencyFallback, req)
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		r.metrics.FallbackInvocations.WithLabelValues(r.emergencyFallback, outcome).Inc()
		if err == nil {
			return resp, nil
		}
		return Response{}, aerrors.Wrap(aerrors.TypeAgentUnavailable, "router", "emergency fallback failed", err)
	}

	if lastErr == nil {
		lastErr = aerrors.New(aerrors.TypeRouting, "router", "no provider available")
	}
	return Response{}, lastErr
}

func (r *Router) backoffDelay(attempt int) time.Duration {
	switch r.backoffKind {
	case config.BackoffLinear:
		return r.retryBaseDelay * time.Duration(attempt)
	case config.BackoffFixed:
		return r.retryBaseDelay
	default: // exponential
		return time.Duration(float64(r.retryBaseDelay) * math.Pow(2, float64(attempt-1)))
	}
}

// invokeProvider dispatches req to providerID, gated by that provider's
// circuit breaker and routed through the strategy selector (spec section
// 4.D "the shell's circuit breaker translates a burst of any failure into a
// fast-failing agent_unavailable during its open window"; section 4.D
// "before each invocation the shell evaluates registered strategies").
// Grounded on the teacher's internal/relay/bitcoin.go per-client health +
// breaker gate around each outbound call.
func (r *Router) invokeProvider(providerID string, req Request) (Response, error) {
	r.mu.RLock()
	p, ok := r.providers[providerID]
	breakers := r.breakers
	selector := r.selector
	r.mu.RUnlock()
	if !ok {
		return Response{}, aerrors.New(aerrors.TypeRouting, "router", "unknown provider: "+providerID)
	}

	var breaker *health.CircuitBreaker
	if breakers != nil {
		breaker = breakers.Get(providerID)
		if !breaker.Allow() {
			return Response{}, aerrors.New(aerrors.TypeAgentUnavailable, "router", "circuit open for provider: "+providerID).WithRetryable(true)
		}
	}

	r.mu.Lock()
	r.providerCalls[providerID]++
	r.mu.Unlock()

	direct := func() (health.Outcome, error) {
		resp, err := p.Invoke(req)
		return health.Outcome{Value: resp}, err
	}

	var outcome health.Outcome
	var err error
	if selector != nil {
		outcome, err = selector.Evaluate(r.evalContext(providerID, p), direct)
	} else {
		outcome, err = direct()
	}

	if breaker != nil {
		if err != nil {
			breaker.RecordFailure()
		} else {
			breaker.RecordSuccess()
		}
	}
	if err != nil {
		return Response{}, err
	}
	resp, _ := outcome.Value.(Response)
	return resp, nil
}

// evalContext builds the strategy selector's decision context for a
// provider, preferring the trained latency predictor's running average over
// the provider's static profile once it has seen traffic (spec section
// 4.D).
func (r *Router) evalContext(providerID string, p Provider) health.EvalContext {
	latencyMs := float64(p.Profile().AvgLatencyMs)
	if r.predictor != nil {
		if avg := r.predictor.Average(); avg > 0 {
			latencyMs = avg
		}
	}
	return health.EvalContext{
		Tool:      providerID,
		LatencyMs: latencyMs,
		ErrorRate: p.Health().ErrorRate,
	}
}

// GenerateStream opens a streaming dispatch, bypassing the cache
// entirely.
func (r *Router) GenerateStream(ctx context.Context, req Request) (*Stream, error) {
	if req.UserTier != "" {
		if err := r.limiter.Admit(req.UserTier); err != nil {
			return nil, err
		}
	}

	req.Streaming = true
	decision, err := r.GetRoutingDecision(req)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	p, ok := r.providers[decision.ProviderID]
	r.mu.RUnlock()
	if !ok {
		return nil, aerrors.New(aerrors.TypeRouting, "router", "unknown provider: "+decision.ProviderID)
	}
	return p.InvokeStream(req)
}

// Metrics returns a snapshot of the router's counters (spec section 4.C
// public contract).
func (r *Router) Metrics() Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	calls := make(map[string]int64, len(r.providerCalls))
	for k, v := range r.providerCalls {
		calls[k] = v
	}
	return Metrics{
		TotalRequests:  r.totalRequests,
		CacheHits:      r.cacheHits,
		CacheMisses:    r.cacheMisses,
		FallbackCount:  r.fallbackCount,
		EmergencyCount: r.emergencyCount,
		ProviderCalls:  calls,
	}
}

// Health reports whether every registered provider is reachable.
func (r *Router) Health() map[string]HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]HealthStatus, len(r.providers))
	for id, p := range r.providers {
		out[id] = p.Health()
	}
	return out
}

func (r *Router) incrTotal() {
	r.mu.Lock()
	r.totalRequests++
	r.mu.Unlock()
}
func (r *Router) incrCacheHit() {
	r.mu.Lock()
	r.cacheHits++
	r.mu.Unlock()
}
func (r *Router) incrCacheMiss() {
	r.mu.Lock()
	r.cacheMisses++
	r.mu.Unlock()
}
func (r *Router) incrFallback() {
	r.mu.Lock()
	r.fallbackCount++
	r.mu.Unlock()
}
func (r *Router) incrEmergency() {
	r.mu.Lock()
	r.emergencyCount++
	r.mu.Unlock()
}

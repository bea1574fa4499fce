package router

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/PayRpc/a2a-fabric/internal/config"
	aerrors "github.com/PayRpc/a2a-fabric/internal/errors"
	"github.com/PayRpc/a2a-fabric/internal/lifecycle"
	"github.com/PayRpc/a2a-fabric/internal/metrics"
	"github.com/PayRpc/a2a-fabric/internal/valuetype"
)

func newTestRouter(t *testing.T, cfg config.Config) *Router {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	return New(cfg, zaptest.NewLogger(t), reg, lifecycle.NopSink{})
}

// flakyProvider returns a 503-equivalent retryable error for its first
// failCount invocations, then succeeds.
type flakyProvider struct {
	id         string
	failCount  int32
	callCount  int32
	profile    CapabilityProfile
	healthy    bool
}

func (p *flakyProvider) ID() string                 { return p.id }
func (p *flakyProvider) Profile() CapabilityProfile { return p.profile }
func (p *flakyProvider) Health() HealthStatus       { return HealthStatus{Available: p.healthy} }

func (p *flakyProvider) Invoke(req Request) (Response, error) {
	n := atomic.AddInt32(&p.callCount, 1)
	if n <= atomic.LoadInt32(&p.failCount) {
		return Response{}, aerrors.New(aerrors.TypeRouting, "test", "503 service unavailable").WithRetryable(true)
	}
	return Response{ProviderID: p.id, Content: valuetype.String("ok-from-" + p.id)}, nil
}

func (p *flakyProvider) InvokeStream(req Request) (*Stream, error) {
	return nil, aerrors.New(aerrors.TypeInternal, "test", "not implemented")
}

func (p *flakyProvider) calls() int32 { return atomic.LoadInt32(&p.callCount) }

// TestRouter_FallbackChain is spec section 8 scenario 3: g-fast fails
// retryably, the chain advances to g-pro, which succeeds; total provider
// calls = 2; final response is from g-pro.
func TestRouter_FallbackChain(t *testing.T) {
	cfg := config.Config{
		RoutingStrategy:   config.StrategyBalanced,
		FallbackChain:     []string{"g-pro"},
		EmergencyFallback: "g-fast",
		MaxRetries:        2,
		BackoffKind:       config.BackoffExponential,
		RetryDelay:        10 * time.Millisecond,
		CacheKeyStrategy:  config.CacheKeyExact,
		CacheMaxEntries:   100,
	}
	r := newTestRouter(t, cfg)

	gFast := &flakyProvider{id: "g-fast", failCount: 2, healthy: true, profile: CapabilityProfile{QualityScore: 0.9}}
	gPro := &flakyProvider{id: "g-pro", failCount: 0, healthy: true, profile: CapabilityProfile{QualityScore: 0.5}}
	r.RegisterProvider(gFast)
	r.RegisterProvider(gPro)

	req := Request{Prompt: "hello", PreferredProvider: "g-fast"}
	resp, err := r.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "g-pro", resp.ProviderID)
	assert.EqualValues(t, 1, gFast.calls())
	assert.EqualValues(t, 1, gPro.calls())

	metrics := r.Metrics()
	assert.EqualValues(t, 1, metrics.FallbackCount)
	assert.EqualValues(t, 0, metrics.EmergencyCount)
}

func TestRouter_EmergencyFallbackTriedExactlyOnce(t *testing.T) {
	cfg := config.Config{
		RoutingStrategy:   config.StrategyBalanced,
		FallbackChain:     []string{},
		EmergencyFallback: "last-resort",
		MaxRetries:        0,
		BackoffKind:       config.BackoffFixed,
		RetryDelay:        1 * time.Millisecond,
		CacheKeyStrategy:  config.CacheKeyExact,
		CacheMaxEntries:   100,
	}
	r := newTestRouter(t, cfg)

	primary := &flakyProvider{id: "primary", failCount: 100, healthy: true}
	lastResort := &flakyProvider{id: "last-resort", failCount: 100, healthy: true}
	r.RegisterProvider(primary)
	r.RegisterProvider(lastResort)

	_, err := r.Generate(context.Background(), Request{Prompt: "hi", PreferredProvider: "primary"})
	assert.Error(t, err)

	assert.EqualValues(t, 1, lastResort.calls())
	assert.EqualValues(t, 1, r.Metrics().EmergencyCount)
}

func TestRouter_CacheHitSkipsProviderDispatch(t *testing.T) {
	cfg := config.Config{
		RoutingStrategy:  config.StrategyBalanced,
		MaxRetries:       0,
		BackoffKind:      config.BackoffFixed,
		RetryDelay:       time.Millisecond,
		CacheKeyStrategy: config.CacheKeyExact,
		CacheMaxEntries:  100,
		CacheTTL:         time.Minute,
	}
	r := newTestRouter(t, cfg)

	provider := &flakyProvider{id: "only", failCount: 0, healthy: true}
	r.RegisterProvider(provider)

	req := Request{Prompt: "same request", PreferredProvider: "only"}
	_, err := r.Generate(context.Background(), req)
	require.NoError(t, err)

	resp2, err := r.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp2.Cached)
	assert.EqualValues(t, 1, provider.calls())
}

func TestRouter_StreamingRequestsNeverReadFromCache(t *testing.T) {
	cfg := config.Config{
		RoutingStrategy:  config.StrategyBalanced,
		CacheKeyStrategy: config.CacheKeyExact,
		CacheMaxEntries:  100,
		CacheTTL:         time.Minute,
	}
	r := newTestRouter(t, cfg)
	provider := &flakyProvider{id: "stream", failCount: 0, healthy: true}
	r.RegisterProvider(provider)

	req := Request{Prompt: "same", PreferredProvider: "stream"}
	_, err := r.Generate(context.Background(), req)
	require.NoError(t, err)

	req.Streaming = true
	_, err = r.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.EqualValues(t, 2, provider.calls())
}

func TestRouter_ThrottledTierIsRejectedWithResourceExhausted(t *testing.T) {
	cfg := config.Config{
		RoutingStrategy:  config.StrategyBalanced,
		CacheKeyStrategy: config.CacheKeyExact,
		CacheMaxEntries:  100,
		TierLimits: map[config.UserTier]config.TierLimits{
			config.TierFree: {RequestsPerSecond: 0.001, BurstCapacity: 1},
		},
	}
	r := newTestRouter(t, cfg)
	provider := &flakyProvider{id: "only", failCount: 0, healthy: true}
	r.RegisterProvider(provider)

	req := Request{Prompt: "hi", PreferredProvider: "only", UserTier: config.TierFree}
	_, err := r.Generate(context.Background(), req)
	require.NoError(t, err)

	_, err = r.Generate(context.Background(), req)
	require.Error(t, err)
	var fabricErr *aerrors.Error
	require.True(t, aerrors.As(err, &fabricErr))
	assert.Equal(t, aerrors.TypeResourceExhausted, fabricErr.Type)
	assert.EqualValues(t, 1, provider.calls(), "second call must be rejected before reaching the provider")
}

func TestRouter_DefaultLatencyTargetAppliesWhenRequestOmitsOne(t *testing.T) {
	cfg := config.Config{
		RoutingStrategy:  config.StrategyBalanced,
		CacheKeyStrategy: config.CacheKeyExact,
		CacheMaxEntries:  100,
		LatencyTargetMs:  100,
	}
	r := newTestRouter(t, cfg)
	fast := &flakyProvider{id: "fast", healthy: true, profile: CapabilityProfile{AvgLatencyMs: 20}}
	slow := &flakyProvider{id: "slow", healthy: true, profile: CapabilityProfile{AvgLatencyMs: 900}}
	r.RegisterProvider(fast)
	r.RegisterProvider(slow)

	decision, err := r.GetRoutingDecision(Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "fast", decision.ProviderID, "fleet default latency target must exclude the slow provider")
}

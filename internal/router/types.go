// Package router is the A2A fabric's Router & Fallback Core (component C):
// it scores registered providers under a configurable strategy, consults a
// fingerprint cache before dispatch, and executes a fallback chain with
// backoff on retryable failure. Grounded on the scoring/eligibility/
// fallback-escalation shape of
// other_examples/073b80e3_jordanhubbard-tokenhub__internal-router-engine.go.go
// and the provider-pool layout of
// other_examples/403fe4f3_Sergey-Bar-Alfred__services-gateway-provider-pool.go.go,
// generalized from an LLM-request router into the fabric's general
// request/response dispatch surface.
package router

import (
	"github.com/PayRpc/a2a-fabric/internal/config"
	"github.com/PayRpc/a2a-fabric/internal/valuetype"
)

// Request is one dispatch request (spec section 4.C "request shape").
type Request struct {
	Prompt            string
	Content           valuetype.Value
	MaxTokens         int
	Temperature       float64
	TopP              float64
	TopK              int
	StopSequences     []string
	Streaming         bool
	MultimodalHandles []string
	UserTier          config.UserTier
	Priority          int
	LatencyTargetMs   int
	PreferredProvider string
}

// Response is one provider's answer to a Request.
type Response struct {
	ProviderID string
	Content    valuetype.Value
	TokensUsed int
	Cached     bool
	LatencyMs  float64
}

// Chunk is one piece of a streaming Response.
type Chunk struct {
	ProviderID string
	Content    valuetype.Value
	Done       bool
}

// CapabilityProfile is a provider's declared performance/cost/capability
// profile used by strategy scoring (spec section 3/4.C).
type CapabilityProfile struct {
	AvgLatencyMs     float64
	CostPer1kTokens  float64
	QualityScore     float64
	SupportsMultimodal bool
	SupportsLongContext bool
	MaxContextTokens int
}

// HealthStatus reports whether a provider is presently usable.
type HealthStatus struct {
	Available   bool
	ErrorRate   float64
	OpenCircuit bool
}

// Provider is anything the router can dispatch a Request to: a direct
// transport-backed adapter, or a registry-backed capability (spec section
// 4.C "Provider interface that both a direct adapter and a registry-backed
// capability can satisfy").
type Provider interface {
	ID() string
	Profile() CapabilityProfile
	Health() HealthStatus
	Invoke(req Request) (Response, error)
	InvokeStream(req Request) (*Stream, error)
}

// Decision is what getRoutingDecision returns (spec section 4.C public
// contract).
type Decision struct {
	ProviderID string
	Score      float64
	Reason     string
	Cached     bool
}

// Stream is a cancellable channel pair replacing the source's async-
// iterator idiom (spec section 9 design note).
type Stream struct {
	Chunks chan Chunk
	Errs   chan error
	cancel func()
}

// Cancel stops stream delivery and releases the underlying provider call.
func (s *Stream) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewStream constructs a Stream with the given cancel func, used by
// Provider implementations.
func NewStream(cancel func()) *Stream {
	return &Stream{
		Chunks: make(chan Chunk, 16),
		Errs:   make(chan error, 1),
		cancel: cancel,
	}
}

// Metrics is a snapshot the router exposes via metrics() (spec section
// 4.C public contract).
type Metrics struct {
	TotalRequests   int64
	CacheHits       int64
	CacheMisses     int64
	FallbackCount   int64
	EmergencyCount  int64
	ProviderCalls   map[string]int64
}

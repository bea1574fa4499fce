package router

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	aerrors "github.com/PayRpc/a2a-fabric/internal/errors"
	"github.com/PayRpc/a2a-fabric/internal/registry"
)

// FuncProvider adapts a plain invoke function into a Provider, for
// providers that are neither transport peers nor registry capabilities
// (e.g. an embedded local model or a test double).
type FuncProvider struct {
	id      string
	profile CapabilityProfile

	mu          sync.RWMutex
	available   bool
	openCircuit bool
	errorCount  int64
	totalCount  int64

	invoke func(ctx context.Context, req Request) (Response, error)
}

// NewFuncProvider constructs a FuncProvider, initially available.
func NewFuncProvider(id string, profile CapabilityProfile, invoke func(ctx context.Context, req Request) (Response, error)) *FuncProvider {
	return &FuncProvider{
		id:        id,
		profile:   profile,
		available: true,
		invoke:    invoke,
	}
}

func (p *FuncProvider) ID() string                 { return p.id }
func (p *FuncProvider) Profile() CapabilityProfile { return p.profile }

func (p *FuncProvider) Health() HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := atomic.LoadInt64(&p.totalCount)
	errs := atomic.LoadInt64(&p.errorCount)
	var errorRate float64
	if total > 0 {
		errorRate = float64(errs) / float64(total)
	}
	return HealthStatus{
		Available:   p.available,
		ErrorRate:   errorRate,
		OpenCircuit: p.openCircuit,
	}
}

// SetAvailable toggles whether the provider accepts dispatches, for tests
// simulating an offline or force-open provider.
func (p *FuncProvider) SetAvailable(available bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = available
}

func (p *FuncProvider) Invoke(req Request) (Response, error) {
	atomic.AddInt64(&p.totalCount, 1)
	resp, err := p.invoke(context.Background(), req)
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
	}
	return resp, err
}

func (p *FuncProvider) InvokeStream(req Request) (*Stream, error) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := NewStream(cancel)
	go func() {
		defer close(stream.Chunks)
		resp, err := p.invoke(ctx, req)
		if err != nil {
			select {
			case stream.Errs <- err:
			default:
			}
			return
		}
		select {
		case stream.Chunks <- Chunk{ProviderID: p.id, Content: resp.Content, Done: true}:
		case <-ctx.Done():
		}
	}()
	return stream, nil
}

// RegistryProvider adapts a registry Registration into a Provider, so the
// router can dispatch to capabilities registered with
// internal/registry.Registry (spec section 4.C "Provider interface that
// both a direct adapter and a registry-backed capability can satisfy").
type RegistryProvider struct {
	reg      *registry.Registry
	capID    string
	caller   registry.CallContext
}

// NewRegistryProvider wraps a registered capability id as a Provider.
func NewRegistryProvider(reg *registry.Registry, capID string, caller registry.CallContext) *RegistryProvider {
	return &RegistryProvider{reg: reg, capID: capID, caller: caller}
}

func (p *RegistryProvider) ID() string { return p.capID }

func (p *RegistryProvider) Profile() CapabilityProfile {
	reg, ok := p.reg.Get(p.capID)
	if !ok {
		return CapabilityProfile{}
	}
	return CapabilityProfile{
		AvgLatencyMs:        reg.Capability.Performance.AvgLatencyMs,
		SupportsLongContext: false,
		QualityScore:        reg.Score(),
	}
}

func (p *RegistryProvider) Health() HealthStatus {
	reg, ok := p.reg.Get(p.capID)
	if !ok {
		return HealthStatus{Available: false}
	}
	return HealthStatus{
		Available: reg.Status == registry.StatusActive,
		ErrorRate: 1 - reg.Usage.SuccessRate,
	}
}

func (p *RegistryProvider) Invoke(req Request) (Response, error) {
	reg, ok := p.reg.Get(p.capID)
	if !ok {
		return Response{}, aerrors.New(aerrors.TypeCapabilityNotFound, "router.provider", "capability not registered: "+p.capID)
	}
	start := time.Now()
	result, err := reg.Invoke(p.caller, req.Content)
	elapsed := time.Since(start)
	p.reg.UpdateUsage(p.capID, err == nil, elapsed)
	if err != nil {
		return Response{}, err
	}
	return Response{
		ProviderID: p.capID,
		Content:    result,
		LatencyMs:  float64(elapsed.Milliseconds()),
	}, nil
}

func (p *RegistryProvider) InvokeStream(req Request) (*Stream, error) {
	_, cancel := context.WithCancel(context.Background())
	stream := NewStream(cancel)
	go func() {
		defer close(stream.Chunks)
		resp, err := p.Invoke(req)
		if err != nil {
			stream.Errs <- err
			return
		}
		stream.Chunks <- Chunk{ProviderID: p.capID, Content: resp.Content, Done: true}
	}()
	return stream, nil
}

package health

import (
	"sync"
	"sync/atomic"

	aerrors "github.com/PayRpc/a2a-fabric/internal/errors"
)

// Instance is a single backend the load balancer can route to.
type Instance struct {
	ID      string
	Healthy func() bool
}

// LoadBalancer distributes invocations for one tool round-robin across its
// declared instances, skipping any instance whose Healthy check currently
// reports false (spec section 4.D: "no health-excluded instance is
// returned"). Grounded on the Polqt service-mesh proxy's LoadBalancer.Next,
// simplified from weighted round-robin to plain round-robin since spec.md
// does not call for per-instance weights.
type LoadBalancer struct {
	mu        sync.RWMutex
	instances []Instance
	cursor    int64
}

// NewLoadBalancer builds a balancer over instances, in the declared order.
func NewLoadBalancer(instances []Instance) *LoadBalancer {
	return &LoadBalancer{instances: append([]Instance(nil), instances...)}
}

// SetInstances replaces the declared instance list.
func (lb *LoadBalancer) SetInstances(instances []Instance) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.instances = append([]Instance(nil), instances...)
}

// Next returns the next healthy instance in round-robin order. It scans at
// most len(instances) candidates starting from the rotating cursor so an
// unhealthy instance is skipped without disturbing fairness for the rest.
func (lb *LoadBalancer) Next() (Instance, error) {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	n := len(lb.instances)
	if n == 0 {
		return Instance{}, aerrors.New(aerrors.TypeAgentUnavailable, "health.loadbalancer", "no instances configured")
	}

	start := int(atomic.AddInt64(&lb.cursor, 1)-1) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		inst := lb.instances[idx]
		if inst.Healthy == nil || inst.Healthy() {
			return inst, nil
		}
	}
	return Instance{}, aerrors.New(aerrors.TypeAgentUnavailable, "health.loadbalancer", "no healthy instances")
}

package registry

import (
	"fmt"

	aerrors "github.com/PayRpc/a2a-fabric/internal/errors"
)

// CreateAggregation synthesizes a new Capability from N registered
// component capabilities (spec section 4.B "aggregation"): parameter
// schema is the union of component schemas, performance is the average
// latency / the worst resource tier / cacheable only if every component
// is, and security is the strictest trust level / the union of required
// capabilities.
func (r *Registry) CreateAggregation(id, name string, componentIDs []string, strategy AggregationStrategy) (Aggregation, error) {
	r.mu.RLock()
	components := make([]Capability, 0, len(componentIDs))
	for _, cid := range componentIDs {
		reg, ok := r.byID[cid]
		if !ok {
			r.mu.RUnlock()
			return Aggregation{}, aerrors.New(aerrors.TypeCapabilityNotFound, "registry.aggregation", "component capability not registered: "+cid)
		}
		components = append(components, reg.Capability)
	}
	r.mu.RUnlock()

	if len(components) == 0 {
		return Aggregation{}, aerrors.New(aerrors.TypeValidation, "registry.aggregation", "aggregation requires at least one component")
	}

	synthesized := synthesizeCapability(name, components)

	agg := Aggregation{
		ID:           id,
		Name:         name,
		ComponentIDs: append([]string(nil), componentIDs...),
		Strategy:     strategy,
		Synthesized:  synthesized,
	}

	r.mu.Lock()
	r.aggregations[id] = agg
	r.mu.Unlock()
	return agg, nil
}

func synthesizeCapability(name string, components []Capability) Capability {
	paramSchema := make(map[string]any)
	minTrust := components[0].Security.MinTrustLevel
	var requiredCaps []string
	requiredSet := make(map[string]struct{})
	var totalLatency float64
	maxResource := ResourceLow
	allCacheable := true

	for _, c := range components {
		for k, v := range c.ParamSchema {
			paramSchema[k] = v
		}
		if c.Security.MinTrustLevel > minTrust {
			minTrust = c.Security.MinTrustLevel
		}
		for _, req := range c.Security.RequiredCapabilities {
			if _, ok := requiredSet[req]; !ok {
				requiredSet[req] = struct{}{}
				requiredCaps = append(requiredCaps, req)
			}
		}
		totalLatency += c.Performance.AvgLatencyMs
		if c.Performance.ResourceUsage > maxResource {
			maxResource = c.Performance.ResourceUsage
		}
		if !c.Performance.Cacheable {
			allCacheable = false
		}
	}

	return Capability{
		Name:        name,
		Version:     "1.0.0",
		Description: "synthesized aggregation of " + fmt.Sprint(len(components)) + " capabilities",
		ParamSchema: paramSchema,
		Security: SecurityDescriptor{
			MinTrustLevel:        minTrust,
			RequiredCapabilities: requiredCaps,
		},
		Performance: PerformanceDescriptor{
			AvgLatencyMs:  totalLatency / float64(len(components)),
			ResourceUsage: maxResource,
			Cacheable:     allCacheable,
		},
	}
}

// GetAggregation returns a stored aggregation by id.
func (r *Registry) GetAggregation(id string) (Aggregation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agg, ok := r.aggregations[id]
	return agg, ok
}

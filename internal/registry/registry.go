package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	aerrors "github.com/PayRpc/a2a-fabric/internal/errors"
	"github.com/PayRpc/a2a-fabric/internal/health"
	"github.com/PayRpc/a2a-fabric/internal/lifecycle"
	"github.com/PayRpc/a2a-fabric/internal/metrics"
	"github.com/PayRpc/a2a-fabric/internal/valuetype"
	"go.uber.org/zap"
)

// Registry is the capability index: register/unregister/query/get/list,
// plus the category index and dependency graph a registration updates
// (spec section 3/4.B). Guarded by a single sync.RWMutex, matching the
// teacher's map-protection idiom in internal/p2p and internal/broadcaster
// (see DESIGN.md's standard-library justification for this choice).
type Registry struct {
	mu sync.RWMutex

	byID       map[string]*Registration
	byCategory map[string]map[string]struct{} // category -> set of ids
	depGraph   map[string][]string            // id -> required capability ids

	compositions  map[string]Composition
	aggregations  map[string]Aggregation

	batchMu  sync.Mutex
	batchers map[string]*health.Batcher

	pendingMu sync.Mutex
	pending   map[string]func() (valuetype.Value, error)

	logger  *zap.Logger
	metrics *metrics.Registry
	sink    lifecycle.Sink
}

// New constructs an empty Registry.
func New(logger *zap.Logger, reg *metrics.Registry, sink lifecycle.Sink) *Registry {
	if sink == nil {
		sink = lifecycle.NopSink{}
	}
	return &Registry{
		byID:         make(map[string]*Registration),
		byCategory:   make(map[string]map[string]struct{}),
		depGraph:     make(map[string][]string),
		compositions: make(map[string]Composition),
		aggregations: make(map[string]Aggregation),
		batchers:     make(map[string]*health.Batcher),
		pending:      make(map[string]func() (valuetype.Value, error)),
		logger:       logger,
		metrics:      reg,
		sink:         sink,
	}
}

// Register validates and stores a capability + invoker (spec section 4.B
// "registration"). Overwriting an existing id is allowed but logged.
func (r *Registry) Register(c Capability, invoke Invoker, metadata map[string]string) error {
	if err := validateCapability(c); err != nil {
		return err
	}
	if invoke == nil {
		return aerrors.New(aerrors.TypeValidation, "registry", "invoker must not be nil")
	}

	id := c.ID()
	c.Metadata = metadata

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; exists {
		r.logger.Info("overwriting existing capability registration", zap.String("id", id))
	}

	reg := &Registration{
		Capability:   c,
		Invoke:       invoke,
		RegisteredAt: time.Now(),
		Status:       StatusActive,
	}
	r.byID[id] = reg

	category := c.Category()
	set, ok := r.byCategory[category]
	if !ok {
		set = make(map[string]struct{})
		r.byCategory[category] = set
	}
	set[id] = struct{}{}

	r.depGraph[id] = append([]string(nil), c.Security.RequiredCapabilities...)

	return nil
}

func validateCapability(c Capability) error {
	switch {
	case c.Name == "":
		return aerrors.New(aerrors.TypeValidation, "registry", "capability name must not be empty")
	case c.Version == "":
		return aerrors.New(aerrors.TypeValidation, "registry", "capability version must not be empty")
	case c.Description == "":
		return aerrors.New(aerrors.TypeValidation, "registry", "capability description must not be empty")
	case c.ParamSchema == nil:
		return aerrors.New(aerrors.TypeValidation, "registry", "capability parameter schema must not be nil")
	}
	return nil
}

// Unregister removes a capability from every index (spec section 8
// round-trip law: unregister(register(c)) => get(c) = absent).
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	delete(r.depGraph, id)

	category := reg.Capability.Category()
	if set, ok := r.byCategory[category]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byCategory, category)
		}
	}
}

// Get returns a single registration by id.
func (r *Registry) Get(id string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byID[id]
	if !ok {
		return Registration{}, false
	}
	return *reg, true
}

// List returns every registration, optionally filtered to a single status.
func (r *Registry) List(status *RegistrationStatus) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, 0, len(r.byID))
	for _, reg := range r.byID {
		if status != nil && reg.Status != *status {
			continue
		}
		out = append(out, *reg)
	}
	return out
}

// Query filters and ranks registrations (spec section 4.B "querying").
func (r *Registry) Query(filter QueryFilter) []Registration {
	r.mu.RLock()
	candidates := make([]Registration, 0, len(r.byID))
	for _, reg := range r.byID {
		candidates = append(candidates, *reg)
	}
	r.mu.RUnlock()

	out := make([]Registration, 0, len(candidates))
	for _, reg := range candidates {
		if matchesFilter(reg, filter) {
			out = append(out, reg)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score() > out[j].Score()
	})
	return out
}

func matchesFilter(reg Registration, f QueryFilter) bool {
	c := reg.Capability

	if f.NameSubstring != "" && !strings.Contains(c.Name, f.NameSubstring) {
		return false
	}
	if f.Version != "" && c.Version != f.Version {
		return false
	}
	if f.Category != "" && c.Category() != f.Category {
		return false
	}
	if f.MinTrustLevel != nil && c.Security.MinTrustLevel > *f.MinTrustLevel {
		return false
	}
	if len(f.RequiredCapabilities) > 0 && !isSuperset(c.Security.RequiredCapabilities, f.RequiredCapabilities) {
		return false
	}
	if f.MaxLatencyMs != nil && c.Performance.AvgLatencyMs > *f.MaxLatencyMs {
		return false
	}
	if f.MaxResourceUsage != nil && c.Performance.ResourceUsage > *f.MaxResourceUsage {
		return false
	}
	for k, v := range f.MetadataTags {
		if c.Metadata[k] != v {
			return false
		}
	}
	return true
}

// isSuperset reports whether held contains every entry of required.
func isSuperset(held, required []string) bool {
	set := make(map[string]struct{}, len(held))
	for _, h := range held {
		set[h] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

// UpdateUsage folds one more invocation's outcome into a registration's
// running stats: a running average over (n-1) prior samples then one new
// sample (spec section 4.B "usage updates").
func (r *Registry) UpdateUsage(id string, success bool, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byID[id]
	if !ok {
		return
	}

	n := reg.Usage.Invocations
	var successValue float64
	if success {
		successValue = 1
	}
	if n == 0 {
		reg.Usage.SuccessRate = successValue
		reg.Usage.AvgLatency = latency
	} else {
		reg.Usage.SuccessRate = (reg.Usage.SuccessRate*float64(n) + successValue) / float64(n+1)
		reg.Usage.AvgLatency = time.Duration((int64(reg.Usage.AvgLatency)*n + int64(latency)) / (n + 1))
	}
	reg.Usage.Invocations = n + 1
	reg.LastUsedAt = time.Now()

	outcome := "failure"
	if success {
		outcome = "success"
	}
	r.metrics.CapabilityInvocations.WithLabelValues(id, outcome).Inc()
	r.metrics.CapabilityLatency.WithLabelValues(id).Observe(latency.Seconds())
}

// DiscoveryInfo summarizes the registry for discovery clients (spec
// section 4.B "discovery info").
func (r *Registry) DiscoveryInfo() DiscoveryInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	categories := make([]string, 0, len(r.byCategory))
	for c := range r.byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	versions := make(map[string][]string)
	deps := make(map[string][]string, len(r.depGraph))
	type invCount struct {
		id    string
		count int64
	}
	counts := make([]invCount, 0, len(r.byID))

	for id, reg := range r.byID {
		versions[reg.Capability.Name] = append(versions[reg.Capability.Name], reg.Capability.Version)
		deps[id] = append([]string(nil), r.depGraph[id]...)
		counts = append(counts, invCount{id: id, count: reg.Usage.Invocations})
	}
	for name := range versions {
		sort.Strings(versions[name])
	}

	sort.Slice(counts, func(i, j int) bool { return counts[i].count > counts[j].count })

	popular := make([]string, 0, 10)
	for i := 0; i < len(counts) && i < 10; i++ {
		popular = append(popular, counts[i].id)
	}

	// Trending uses the same total-invocation ranking as popular, which is
	// an implementation freedom the spec explicitly leaves open; a rolling
	// time window would need per-invocation timestamps this registry does
	// not retain.
	trending := append([]string(nil), popular...)

	return DiscoveryInfo{
		Categories:   categories,
		Versions:     versions,
		Dependencies: deps,
		Popular:      popular,
		Trending:     trending,
	}
}

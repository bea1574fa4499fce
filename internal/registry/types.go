// Package registry is the A2A fabric's Capability Registry & Composer
// (component B): a queryable index of named, versioned, schematized
// capabilities, plus dependency-ordered compositions executed under a
// chosen strategy and error policy. Grounded on the capability-provider and
// orchestration contracts in
// other_examples/25ad8d21_itsneelabh-gomind__orchestration-interfaces.go.go
// and other_examples/e7473890_itsneelabh-gomind__orchestration-capability_provider.go.go
// (CapabilityProvider, ExecutionResult/StepResult, RoutingPlan dependency
// ordering), generalized from a single LLM-routing use case into the
// fabric's general register/query/compose surface.
package registry

import (
	"time"

	"github.com/PayRpc/a2a-fabric/internal/valuetype"
)

// TrustLevel is a totally-ordered principal classification gating
// capability use (spec section 3).
type TrustLevel int

const (
	TrustUntrusted TrustLevel = iota
	TrustBasic
	TrustVerified
	TrustTrusted
	TrustPrivileged
)

func (t TrustLevel) String() string {
	switch t {
	case TrustUntrusted:
		return "untrusted"
	case TrustBasic:
		return "basic"
	case TrustVerified:
		return "verified"
	case TrustTrusted:
		return "trusted"
	case TrustPrivileged:
		return "privileged"
	default:
		return "unknown"
	}
}

// ResourceUsage tiers a capability's expected resource footprint.
type ResourceUsage int

const (
	ResourceLow ResourceUsage = iota
	ResourceMedium
	ResourceHigh
)

// RegistrationStatus is a registration's lifecycle state.
type RegistrationStatus string

const (
	StatusActive      RegistrationStatus = "active"
	StatusDeprecated  RegistrationStatus = "deprecated"
	StatusDisabled    RegistrationStatus = "disabled"
	StatusMaintenance RegistrationStatus = "maintenance"
)

// SecurityDescriptor gates who may invoke a capability (spec section 3).
type SecurityDescriptor struct {
	MinTrustLevel        TrustLevel
	RequiredCapabilities []string
	SideEffects          []string
}

// PerformanceDescriptor is a capability's declared cost profile (spec
// section 3).
type PerformanceDescriptor struct {
	AvgLatencyMs  float64
	ResourceUsage ResourceUsage
	Cacheable     bool
}

// Capability is a named, versioned, schematized unit of remote work. Name
// plus Version uniquely identifies it (spec section 3 invariant).
type Capability struct {
	Name        string
	Version     string
	Description string
	ParamSchema map[string]any
	Security    SecurityDescriptor
	Performance PerformanceDescriptor
	Metadata    map[string]string
}

// ID is the id a capability is registered and queried under.
func (c Capability) ID() string { return c.Name + "@" + c.Version }

// Category is the name prefix before the first '.', defaulting to
// "general" (spec section 4.B registration rule).
func (c Capability) Category() string {
	for i, r := range c.Name {
		if r == '.' {
			return c.Name[:i]
		}
	}
	return "general"
}

// Invoker executes a capability's body against decoded parameters and an
// authorization context, returning a result Value or an error.
type Invoker func(ctx CallContext, params valuetype.Value) (valuetype.Value, error)

// CallContext carries the caller's authorization posture into an invoker
// or composition execution (spec section 4.B security gate).
type CallContext struct {
	TrustLevel           TrustLevel
	HeldCapabilities     map[string]struct{}
	CorrelationID        string
}

// HasCapability reports whether the caller holds capability name.
func (c CallContext) HasCapability(name string) bool {
	_, ok := c.HeldCapabilities[name]
	return ok
}

// UsageStats is a registration's running invocation statistics (spec
// section 3, updated per spec section 4.B "usage updates").
type UsageStats struct {
	Invocations int64
	SuccessRate float64
	AvgLatency  time.Duration
}

// Registration binds a Capability to its Invoker plus lifecycle metadata
// (spec section 3).
type Registration struct {
	Capability   Capability
	Invoke       Invoker
	RegisteredAt time.Time
	LastUsedAt   time.Time
	Usage        UsageStats
	Status       RegistrationStatus
}

// Score ranks a registration for query ordering: successRate *
// 1/max(avgLatencyMs,1) descending (spec section 4.B "querying").
func (r Registration) Score() float64 {
	latencyMs := float64(r.Usage.AvgLatency.Milliseconds())
	if latencyMs < 1 {
		latencyMs = 1
	}
	return r.Usage.SuccessRate * (1.0 / latencyMs)
}

// ExecutionStrategy selects how a Composition's steps are scheduled (spec
// section 4.B).
type ExecutionStrategy string

const (
	StrategySequential  ExecutionStrategy = "sequential"
	StrategyParallel    ExecutionStrategy = "parallel"
	StrategyPipeline    ExecutionStrategy = "pipeline"
	StrategyConditional ExecutionStrategy = "conditional"
)

// ErrorPolicy selects how a Composition's steps recover from failure (spec
// section 4.B).
type ErrorPolicy string

const (
	PolicyFailFast ErrorPolicy = "fail-fast"
	PolicyContinue ErrorPolicy = "continue"
	PolicyRetry    ErrorPolicy = "retry"
)

// Predicate decides whether a conditional composition step should run,
// given the accumulated pipeline state so far.
type Predicate func(accumulated valuetype.Value) bool

// Step is one capability invocation within a Composition, plus its
// conditional-strategy predicate (ignored by every other strategy).
type Step struct {
	CapabilityID string
	DependsOn    []string
	When         Predicate
}

// SecurityPolicy is a Composition's aggregated gate (spec section 3).
type SecurityPolicy struct {
	MinTrustLevel        TrustLevel
	RequiredCapabilities []string
	ElevatedPrivileges   bool
}

// Composition is a dependency-ordered grouping of capabilities executed
// under a single policy (spec section 3).
type Composition struct {
	ID        string
	Steps     []Step
	Strategy  ExecutionStrategy
	ErrPolicy ErrorPolicy
	Timeout   time.Duration
	Security  SecurityPolicy
	MaxRetries int
	RetryBaseDelay time.Duration
}

// capabilityIDs returns the set of capability ids the composition
// references, in declared order.
func (c Composition) capabilityIDs() []string {
	out := make([]string, len(c.Steps))
	for i, s := range c.Steps {
		out[i] = s.CapabilityID
	}
	return out
}

// CompositionStatus reports how an execution concluded (spec section 8
// scenario 2).
type CompositionStatus string

const (
	CompositionCompleted            CompositionStatus = "completed"
	CompositionCompletedWithErrors  CompositionStatus = "completed-with-errors"
	CompositionAborted              CompositionStatus = "aborted"
)

// ExecutionResult is what execute() returns: per-step results, per-step
// errors (continue/retry policies), and an overall status.
type ExecutionResult struct {
	CompositionID string
	Results       map[string]valuetype.Value
	Errors        map[string]error
	Status        CompositionStatus
	Duration      time.Duration
}

// AggregationStrategy names how an Aggregation combines its component
// capabilities (spec section 4.B). It is recorded on the Aggregation only:
// the synthesized schema, performance, and security are built the same way
// for merge, compose, and overlay.
type AggregationStrategy string

const (
	AggregationMerge   AggregationStrategy = "merge"
	AggregationCompose AggregationStrategy = "compose"
	AggregationOverlay AggregationStrategy = "overlay"
)

// Aggregation is a synthesized capability built from N real ones (spec
// section 3).
type Aggregation struct {
	ID           string
	Name         string
	ComponentIDs []string
	Strategy     AggregationStrategy
	Synthesized  Capability
}

// QueryFilter narrows query() results (spec section 4.B "querying").
type QueryFilter struct {
	NameSubstring        string
	Version              string
	Category             string
	MinTrustLevel        *TrustLevel
	RequiredCapabilities []string
	MaxLatencyMs         *float64
	MaxResourceUsage     *ResourceUsage
	MetadataTags         map[string]string
}

// DiscoveryInfo is the registry's discovery summary (spec section 4.B).
type DiscoveryInfo struct {
	Categories   []string
	Versions     map[string][]string // capability name -> versions
	Dependencies map[string][]string // capability id -> dependency ids
	Popular      []string            // top-10 by invocations
	Trending     []string            // same top-10 list as Popular
}

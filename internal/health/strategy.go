package health

import (
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	aerrors "github.com/PayRpc/a2a-fabric/internal/errors"
	"github.com/PayRpc/a2a-fabric/internal/lifecycle"
	"github.com/PayRpc/a2a-fabric/internal/metrics"
)

// Kind names the class of optimization a Strategy applies (spec section
// 4.D: "caching, circuit breaker, load balance, parallel, batch, retry").
type Kind string

const (
	KindCaching        Kind = "caching"
	KindCircuitBreaker Kind = "circuit_breaker"
	KindLoadBalance    Kind = "load_balance"
	KindParallel       Kind = "parallel"
	KindBatch          Kind = "batch"
	KindRetry          Kind = "retry"
)

// Conditions is the thresholded condition set a strategy is evaluated
// against before each invocation (spec section 4.D). Zero-value fields
// are not checked; Predicate, when set, runs in addition to the
// thresholds and must also pass.
type Conditions struct {
	LatencyAboveMs    float64
	ErrorRateAbove    float64
	ResourceUsageAbove float64
	Predicate         func(EvalContext) bool
}

// EvalContext is the live signal snapshot a condition set is evaluated
// against for one tool ahead of an invocation.
type EvalContext struct {
	Tool          string
	LatencyMs     float64
	ErrorRate     float64
	ResourceUsage float64
}

func (c Conditions) matches(ctx EvalContext) bool {
	if c.LatencyAboveMs > 0 && ctx.LatencyMs <= c.LatencyAboveMs {
		return false
	}
	if c.ErrorRateAbove > 0 && ctx.ErrorRate <= c.ErrorRateAbove {
		return false
	}
	if c.ResourceUsageAbove > 0 && ctx.ResourceUsage <= c.ResourceUsageAbove {
		return false
	}
	if c.Predicate != nil && !c.Predicate(ctx) {
		return false
	}
	return true
}

// Action runs a strategy's alternate invocation path. invoke is the
// direct-call fallback the strategy may itself delegate to (e.g. retry
// wraps invoke with backoff; caching may skip it entirely on a hit).
type Action func(invoke DirectInvoke) (Outcome, error)

// DirectInvoke performs the plain, unoptimized invocation a strategy can
// fall back to or wrap.
type DirectInvoke func() (Outcome, error)

// Outcome is whatever a strategy or direct invocation produced; the shell
// treats it opaquely.
type Outcome struct {
	Value any
}

// Strategy is one registered optimization path for a tool.
type Strategy struct {
	Name               string
	Kind               Kind
	Priority           int
	SuccessRate        float64
	AverageImprovement float64
	Conditions         Conditions
	Run                Action
}

// score ranks strategies by priority x successRate x averageImprovement
// (spec section 4.D), highest first.
func (s Strategy) score() float64 {
	return float64(s.Priority) * s.SuccessRate * s.AverageImprovement
}

// Selector evaluates registered strategies ahead of each invocation and
// runs at most one per call, falling back to a direct invocation and
// recording the fallback when the chosen strategy fails (spec section
// 4.D).
type Selector struct {
	strategies []Strategy
	logger     *zap.Logger
	sink       lifecycle.Sink
	metrics    *metrics.Registry
}

// NewSelector constructs a selector. A nil sink defaults to a no-op; m may
// be nil, in which case outcomes are not exported as metrics.
func NewSelector(logger *zap.Logger, sink lifecycle.Sink, m *metrics.Registry) *Selector {
	if sink == nil {
		sink = lifecycle.NopSink{}
	}
	return &Selector{logger: logger, sink: sink, metrics: m}
}

// Register adds a strategy to the selector's pool.
func (s *Selector) Register(strategy Strategy) {
	s.strategies = append(s.strategies, strategy)
}

// Evaluate picks the highest-scoring strategy whose conditions match ctx,
// runs it, and falls back to invoke on failure or when no strategy
// matches. Exactly one strategy action (at most) runs per call (spec
// section 4.D: "At most one strategy's action runs per call").
func (s *Selector) Evaluate(ctx EvalContext, invoke DirectInvoke) (Outcome, error) {
	candidates := make([]Strategy, 0, len(s.strategies))
	for _, st := range s.strategies {
		if st.Conditions.matches(ctx) {
			candidates = append(candidates, st)
		}
	}
	if len(candidates) == 0 {
		return invoke()
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score() > candidates[j].score()
	})
	chosen := candidates[0]

	out, err := chosen.Run(invoke)
	if err == nil {
		s.recordOutcome(chosen.Name, ctx.Tool, true, false, nil)
		return out, nil
	}

	s.recordOutcome(chosen.Name, ctx.Tool, true, true, err)
	if s.logger != nil {
		s.logger.Warn("strategy failed, falling back to direct invocation",
			zap.String("strategy", chosen.Name),
			zap.String("tool", ctx.Tool),
			zap.Error(err),
		)
	}

	out, err = invoke()
	if err != nil {
		return Outcome{}, aerrors.Wrap(aerrors.TypeInternal, "health.strategy", "fallback invocation failed", err)
	}
	return out, nil
}

func (s *Selector) recordOutcome(strategy, tool string, applied, fallback bool, err error) {
	s.sink.StrategyOutcome(lifecycle.StrategyEvent{
		Strategy: strategy,
		Tool:     tool,
		Applied:  applied,
		Fallback: fallback,
		Err:      err,
		At:       time.Now(),
	})
	if s.metrics != nil {
		s.metrics.StrategyOutcomes.WithLabelValues(strategy, strconv.FormatBool(applied)).Inc()
	}
}

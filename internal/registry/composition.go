package registry

import (
	"sync"
	"time"

	aerrors "github.com/PayRpc/a2a-fabric/internal/errors"
	"github.com/PayRpc/a2a-fabric/internal/health"
	"github.com/PayRpc/a2a-fabric/internal/valuetype"
	"github.com/google/uuid"
)

const (
	invocationBatchSize    = 4
	invocationBatchMaxWait = 10 * time.Millisecond
)

// CreateComposition validates and stores a composition (spec section 4.B
// "composition validation"): every referenced capability id must be
// registered, every dependency target must be in the composition, and the
// dependency graph must be acyclic.
func (r *Registry) CreateComposition(c Composition) error {
	ids := c.capabilityIDs()
	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	r.mu.RLock()
	for _, id := range ids {
		if _, ok := r.byID[id]; !ok {
			r.mu.RUnlock()
			return aerrors.New(aerrors.TypeCapabilityNotFound, "registry.composition", "referenced capability not registered: "+id)
		}
	}
	r.mu.RUnlock()

	adj := make(map[string][]string, len(c.Steps))
	for _, s := range c.Steps {
		for _, dep := range s.DependsOn {
			if _, ok := idSet[dep]; !ok {
				return aerrors.New(aerrors.TypeValidation, "registry.composition", "dependency target not in composition: "+dep)
			}
		}
		adj[s.CapabilityID] = append(adj[s.CapabilityID], s.DependsOn...)
	}
	if err := validateAcyclic(adj); err != nil {
		return err
	}

	r.mu.Lock()
	r.compositions[c.ID] = c
	r.mu.Unlock()
	return nil
}

// Execute runs a stored composition against params under callerContext,
// enforcing the security gate first (spec section 4.B "execute").
func (r *Registry) Execute(compositionID string, params valuetype.Value, caller CallContext) (ExecutionResult, error) {
	r.mu.RLock()
	comp, ok := r.compositions[compositionID]
	r.mu.RUnlock()
	if !ok {
		return ExecutionResult{}, aerrors.New(aerrors.TypeCapabilityNotFound, "registry.composition", "composition not found: "+compositionID)
	}

	if err := r.authorize(comp.Security, caller); err != nil {
		return ExecutionResult{}, err
	}

	start := time.Now()
	var result ExecutionResult
	switch comp.Strategy {
	case StrategyParallel:
		result = r.executeParallel(comp, params, caller)
	case StrategyPipeline:
		result = r.executePipeline(comp, params, caller)
	case StrategyConditional:
		result = r.executeConditional(comp, params, caller)
	default: // sequential, and any unrecognized strategy
		result = r.executeSequential(comp, params, caller)
	}
	result.CompositionID = compositionID
	result.Duration = time.Since(start)
	r.metrics.CompositionExecutions.WithLabelValues(string(comp.Strategy), string(result.Status)).Inc()
	return result, nil
}

// executeSequential runs steps in declared order, applying the error
// policy on each failure (spec section 4.B "sequential").
func (r *Registry) executeSequential(comp Composition, params valuetype.Value, caller CallContext) ExecutionResult {
	results := make(map[string]valuetype.Value)
	errs := make(map[string]error)

	for _, step := range comp.Steps {
		val, err := r.invokeWithPolicy(comp, step, params, caller)
		if err != nil {
			errs[step.CapabilityID] = err
			if comp.ErrPolicy == PolicyFailFast {
				return ExecutionResult{Results: results, Errors: errs, Status: CompositionAborted}
			}
			continue
		}
		results[step.CapabilityID] = val
	}
	return ExecutionResult{Results: results, Errors: errs, Status: statusFor(errs)}
}

// executeParallel dispatches every step concurrently, collecting results
// only after all have settled (spec section 4.B "parallel").
func (r *Registry) executeParallel(comp Composition, params valuetype.Value, caller CallContext) ExecutionResult {
	results := make(map[string]valuetype.Value)
	errs := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, step := range comp.Steps {
		step := step
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, err := r.invokeWithPolicy(comp, step, params, caller)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[step.CapabilityID] = err
				return
			}
			results[step.CapabilityID] = val
		}()
	}
	wg.Wait()

	if comp.ErrPolicy == PolicyFailFast && len(errs) > 0 {
		return ExecutionResult{Results: results, Errors: errs, Status: CompositionAborted}
	}
	return ExecutionResult{Results: results, Errors: errs, Status: statusFor(errs)}
}

// executePipeline runs steps in order, merging each result into the
// parameter object for the next step: next = {...prev, ...result} (spec
// section 4.B "pipeline").
func (r *Registry) executePipeline(comp Composition, params valuetype.Value, caller CallContext) ExecutionResult {
	results := make(map[string]valuetype.Value)
	errs := make(map[string]error)
	accumulated := params

	for _, step := range comp.Steps {
		val, err := r.invokeWithPolicy(comp, step, accumulated, caller)
		if err != nil {
			errs[step.CapabilityID] = err
			if comp.ErrPolicy == PolicyFailFast {
				return ExecutionResult{Results: results, Errors: errs, Status: CompositionAborted}
			}
			continue
		}
		results[step.CapabilityID] = val
		accumulated = valuetype.Merge(accumulated, val)
	}
	return ExecutionResult{Results: results, Errors: errs, Status: statusFor(errs)}
}

// executeConditional evaluates each step's predicate over accumulated
// state, skipping steps whose predicate returns false; falls back to
// sequential semantics for any step with no predicate (spec section 4.B
// "conditional").
func (r *Registry) executeConditional(comp Composition, params valuetype.Value, caller CallContext) ExecutionResult {
	results := make(map[string]valuetype.Value)
	errs := make(map[string]error)
	accumulated := params

	for _, step := range comp.Steps {
		if step.When != nil && !step.When(accumulated) {
			continue
		}
		val, err := r.invokeWithPolicy(comp, step, accumulated, caller)
		if err != nil {
			errs[step.CapabilityID] = err
			if comp.ErrPolicy == PolicyFailFast {
				return ExecutionResult{Results: results, Errors: errs, Status: CompositionAborted}
			}
			continue
		}
		results[step.CapabilityID] = val
		accumulated = valuetype.Merge(accumulated, val)
	}
	return ExecutionResult{Results: results, Errors: errs, Status: statusFor(errs)}
}

// invokeWithPolicy invokes a single step's capability, applying the
// composition's retry policy when configured (spec section 4.B "retry":
// per-step retry up to a cap with exponential backoff, then treated as
// continue for that step).
func (r *Registry) invokeWithPolicy(comp Composition, step Step, params valuetype.Value, caller CallContext) (valuetype.Value, error) {
	r.mu.RLock()
	reg, ok := r.byID[step.CapabilityID]
	r.mu.RUnlock()
	if !ok {
		return valuetype.Value{}, aerrors.New(aerrors.TypeCapabilityNotFound, "registry.composition", "capability not registered: "+step.CapabilityID)
	}

	maxAttempts := 1
	if comp.ErrPolicy == PolicyRetry && comp.MaxRetries > 0 {
		maxAttempts = comp.MaxRetries + 1
	}
	baseDelay := comp.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 50 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(baseDelay * time.Duration(1<<uint(attempt-1)))
		}
		start := time.Now()
		val, err := r.invokeBatched(step.CapabilityID, reg, caller, params)
		r.UpdateUsage(step.CapabilityID, err == nil, time.Since(start))
		if err == nil {
			return val, nil
		}
		lastErr = err
	}
	return valuetype.Value{}, lastErr
}

// invokeBatched routes a capability call through its per-capability batcher
// (spec section 4.D "batch"): concurrent callers for the same capability
// within the batch window are flushed together, each resolved
// independently against the invoker's own result. The batcher's generic
// Invocation only carries a Value payload, so the caller's authorization
// context travels alongside it in a per-call closure table keyed by a fresh
// invocation id.
func (r *Registry) invokeBatched(capabilityID string, reg *Registration, caller CallContext, params valuetype.Value) (valuetype.Value, error) {
	id := uuid.NewString()

	r.pendingMu.Lock()
	r.pending[id] = func() (valuetype.Value, error) {
		return reg.Invoke(caller, params)
	}
	r.pendingMu.Unlock()

	batcher := r.batcherFor(capabilityID)
	result := batcher.Submit(health.Invocation{ID: id, Payload: params})
	return result.Value, result.Err
}

// batcherFor returns the per-capability batcher, creating it on first use.
func (r *Registry) batcherFor(capabilityID string) *health.Batcher {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	if b, ok := r.batchers[capabilityID]; ok {
		return b
	}
	b := health.NewBatcher(invocationBatchSize, invocationBatchMaxWait, r.flushBatch)
	r.batchers[capabilityID] = b
	return b
}

// flushBatch resolves every pending invocation in a flushed batch
// concurrently against the closure table populated by invokeBatched.
func (r *Registry) flushBatch(batch []health.Invocation) []health.Result {
	results := make([]health.Result, len(batch))
	var wg sync.WaitGroup
	for i, inv := range batch {
		i, inv := i, inv
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.pendingMu.Lock()
			call := r.pending[inv.ID]
			delete(r.pending, inv.ID)
			r.pendingMu.Unlock()

			if call == nil {
				results[i] = health.Result{ID: inv.ID, Err: aerrors.New(aerrors.TypeInternal, "registry.composition", "no pending invocation for batch id: "+inv.ID)}
				return
			}
			val, err := call()
			results[i] = health.Result{ID: inv.ID, Value: val, Err: err}
		}()
	}
	wg.Wait()
	return results
}

func statusFor(errs map[string]error) CompositionStatus {
	if len(errs) == 0 {
		return CompositionCompleted
	}
	return CompositionCompletedWithErrors
}

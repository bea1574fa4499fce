package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestCircuitBreaker_OpensOnFailureThresholdthFailureNotSooner(t *testing.T) {
	cb := NewCircuitBreaker("provider-a", CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: time.Minute}, zaptest.NewLogger(t), nil)

	for i := 0; i < 4; i++ {
		assert.True(t, cb.Allow())
		cb.RecordFailure()
		assert.Equal(t, StateClosed, cb.State(), "must stay closed before the threshold-th failure")
	}

	cb.RecordFailure() // 5th consecutive failure
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("provider-a", CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute}, zaptest.NewLogger(t), nil)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State(), "success must reset the consecutive counter")
}

func TestCircuitBreaker_OpenRejectsUntilResetTimeoutElapses(t *testing.T) {
	cb := NewCircuitBreaker("provider-a", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 20 * time.Millisecond}, zaptest.NewLogger(t), nil)

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, cb.Allow(), "must transition to half-open once resetTimeout elapses")
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenTrialSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker("provider-a", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Millisecond}, zaptest.NewLogger(t), nil)
	cb.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("provider-a", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Millisecond}, zaptest.NewLogger(t), nil)
	cb.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenRespectsTrialBudget(t *testing.T) {
	cb := NewCircuitBreaker("provider-a", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Millisecond, HalfOpenMaxCalls: 2}, zaptest.NewLogger(t), nil)
	cb.RecordFailure()
	time.Sleep(5 * time.Millisecond)

	assert.True(t, cb.Allow(), "first trial call")
	assert.True(t, cb.Allow(), "second trial call within budget")
	assert.False(t, cb.Allow(), "third trial call exceeds budget of 2")
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestRegistry_LazilyCreatesPerNameBreakers(t *testing.T) {
	reg := NewRegistry(DefaultCircuitBreakerConfig(), zaptest.NewLogger(t), nil)

	a := reg.Get("tool-a")
	b := reg.Get("tool-b")
	again := reg.Get("tool-a")

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
}

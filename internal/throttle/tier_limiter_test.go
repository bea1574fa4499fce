package throttle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PayRpc/a2a-fabric/internal/config"
)

func TestTierLimiter_AllowsUpToBurstThenRejects(t *testing.T) {
	tl := NewTierLimiter(map[config.UserTier]config.TierLimits{
		config.TierFree: {RequestsPerSecond: 0.001, BurstCapacity: 2},
	})

	assert.True(t, tl.Allow(config.TierFree))
	assert.True(t, tl.Allow(config.TierFree))
	assert.False(t, tl.Allow(config.TierFree), "third call within the same instant must exceed the burst")
}

func TestTierLimiter_UnknownTierAlwaysAllowed(t *testing.T) {
	tl := NewTierLimiter(map[config.UserTier]config.TierLimits{})
	assert.True(t, tl.Allow(config.TierUltra))
}

func TestTierLimiter_AdmitReturnsResourceExhaustedWhenThrottled(t *testing.T) {
	tl := NewTierLimiter(map[config.UserTier]config.TierLimits{
		config.TierFree: {RequestsPerSecond: 0.001, BurstCapacity: 1},
	})

	require.NoError(t, tl.Admit(config.TierFree))
	err := tl.Admit(config.TierFree)
	require.Error(t, err)
}

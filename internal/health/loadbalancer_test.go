package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBalancer_RoundRobinsOverInstances(t *testing.T) {
	lb := NewLoadBalancer([]Instance{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	seen := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		inst, err := lb.Next()
		require.NoError(t, err)
		seen = append(seen, inst.ID)
	}

	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, seen)
}

func TestLoadBalancer_NeverReturnsHealthExcludedInstance(t *testing.T) {
	lb := NewLoadBalancer([]Instance{
		{ID: "a", Healthy: func() bool { return false }},
		{ID: "b", Healthy: func() bool { return true }},
	})

	for i := 0; i < 4; i++ {
		inst, err := lb.Next()
		require.NoError(t, err)
		assert.Equal(t, "b", inst.ID)
	}
}

func TestLoadBalancer_NoHealthyInstancesIsError(t *testing.T) {
	lb := NewLoadBalancer([]Instance{{ID: "a", Healthy: func() bool { return false }}})
	_, err := lb.Next()
	assert.Error(t, err)
}

func TestLoadBalancer_EmptyInstanceListIsError(t *testing.T) {
	lb := NewLoadBalancer(nil)
	_, err := lb.Next()
	assert.Error(t, err)
}

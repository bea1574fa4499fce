package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectCycle_AcyclicGraphReturnsNil(t *testing.T) {
	adj := map[string][]string{
		"A": {"B"},
		"B": {"C"},
		"C": {},
	}
	assert.Nil(t, detectCycle(adj))
}

func TestDetectCycle_DirectCycleIsFound(t *testing.T) {
	adj := map[string][]string{
		"A": {"B"},
		"B": {"A"},
	}
	cycle := detectCycle(adj)
	assert.NotNil(t, cycle)
	assert.Contains(t, cycle, "A")
	assert.Contains(t, cycle, "B")
}

func TestDetectCycle_SelfLoopIsFound(t *testing.T) {
	adj := map[string][]string{
		"A": {"A"},
	}
	cycle := detectCycle(adj)
	assert.Equal(t, []string{"A", "A"}, cycle)
}

func TestDetectCycle_DiamondShapeIsAcyclic(t *testing.T) {
	adj := map[string][]string{
		"A": {"B", "C"},
		"B": {"D"},
		"C": {"D"},
		"D": {},
	}
	assert.Nil(t, detectCycle(adj))
}

func TestValidateAcyclic_ReturnsValidationErrorWithCyclePath(t *testing.T) {
	adj := map[string][]string{
		"A": {"B"},
		"B": {"C"},
		"C": {"A"},
	}
	err := validateAcyclic(adj)
	assert.Error(t, err)
}

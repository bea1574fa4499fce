package registry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/PayRpc/a2a-fabric/internal/lifecycle"
	"github.com/PayRpc/a2a-fabric/internal/metrics"
	"github.com/PayRpc/a2a-fabric/internal/valuetype"
)

func newTestRegistry(t *testing.T) *Registry {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	return New(zaptest.NewLogger(t), reg, lifecycle.NopSink{})
}

func numberParams(a, b float64) valuetype.Value {
	return valuetype.Object(map[string]valuetype.Value{
		"a": valuetype.Number(a),
		"b": valuetype.Number(b),
	})
}

// TestRegistry_HappyPathDispatch is spec section 8 scenario 1.
func TestRegistry_HappyPathDispatch(t *testing.T) {
	r := newTestRegistry(t)

	add := Capability{
		Name:        "math.add",
		Version:     "1.0.0",
		Description: "adds two numbers",
		ParamSchema: map[string]any{"a": "number", "b": "number"},
	}
	err := r.Register(add, func(_ CallContext, params valuetype.Value) (valuetype.Value, error) {
		a, _ := params.Get("a")
		b, _ := params.Get("b")
		av, _ := a.AsNumber()
		bv, _ := b.AsNumber()
		return valuetype.Number(av + bv), nil
	}, nil)
	require.NoError(t, err)

	reg, ok := r.Get("math.add@1.0.0")
	require.True(t, ok)

	result, invokeErr := reg.Invoke(CallContext{}, numberParams(2, 3))
	require.NoError(t, invokeErr)
	sum, ok := result.AsNumber()
	require.True(t, ok)
	assert.Equal(t, 5.0, sum)

	r.UpdateUsage("math.add@1.0.0", invokeErr == nil, 0)
	reg, _ = r.Get("math.add@1.0.0")
	assert.Equal(t, int64(1), reg.Usage.Invocations)
	assert.Equal(t, 1.0, reg.Usage.SuccessRate)
}

// TestRegistry_SequentialCompositionWithContinuePolicy is spec section 8
// scenario 2.
func TestRegistry_SequentialCompositionWithContinuePolicy(t *testing.T) {
	r := newTestRegistry(t)

	register := func(name string, invoke Invoker) {
		err := r.Register(Capability{
			Name:        name,
			Version:     "1.0.0",
			Description: "test capability " + name,
			ParamSchema: map[string]any{},
		}, invoke, nil)
		require.NoError(t, err)
	}

	register("A", func(_ CallContext, _ valuetype.Value) (valuetype.Value, error) {
		return valuetype.String("a-result"), nil
	})
	register("B", func(_ CallContext, _ valuetype.Value) (valuetype.Value, error) {
		return valuetype.Value{}, assertErr("B failed")
	})
	register("C", func(_ CallContext, _ valuetype.Value) (valuetype.Value, error) {
		return valuetype.String("c-result"), nil
	})

	comp := Composition{
		ID: "abc",
		Steps: []Step{
			{CapabilityID: "A@1.0.0"},
			{CapabilityID: "B@1.0.0"},
			{CapabilityID: "C@1.0.0"},
		},
		Strategy:  StrategySequential,
		ErrPolicy: PolicyContinue,
	}
	require.NoError(t, r.CreateComposition(comp))

	result, err := r.Execute("abc", valuetype.Object(nil), CallContext{})
	require.NoError(t, err)

	assert.Equal(t, CompositionCompletedWithErrors, result.Status)
	assert.Contains(t, result.Results, "A@1.0.0")
	assert.Contains(t, result.Results, "C@1.0.0")
	assert.NotContains(t, result.Results, "B@1.0.0")
	assert.Contains(t, result.Errors, "B@1.0.0")
	assert.Len(t, result.Errors, 1)
}

func TestRegistry_CompositionRejectsCyclicDependencyGraph(t *testing.T) {
	r := newTestRegistry(t)

	register := func(name string) {
		err := r.Register(Capability{
			Name:        name,
			Version:     "1.0.0",
			Description: "cyclic test capability",
			ParamSchema: map[string]any{},
		}, func(_ CallContext, _ valuetype.Value) (valuetype.Value, error) {
			return valuetype.Null(), nil
		}, nil)
		require.NoError(t, err)
	}
	register("X")
	register("Y")

	comp := Composition{
		ID: "cyclic",
		Steps: []Step{
			{CapabilityID: "X@1.0.0", DependsOn: []string{"Y@1.0.0"}},
			{CapabilityID: "Y@1.0.0", DependsOn: []string{"X@1.0.0"}},
		},
		Strategy:  StrategySequential,
		ErrPolicy: PolicyFailFast,
	}
	err := r.CreateComposition(comp)
	assert.Error(t, err)
}

func TestRegistry_UnregisterThenGetIsAbsent(t *testing.T) {
	r := newTestRegistry(t)
	c := Capability{
		Name:        "echo",
		Version:     "1.0.0",
		Description: "echoes input",
		ParamSchema: map[string]any{},
	}
	require.NoError(t, r.Register(c, func(_ CallContext, p valuetype.Value) (valuetype.Value, error) {
		return p, nil
	}, nil))

	_, ok := r.Get("echo@1.0.0")
	require.True(t, ok)

	r.Unregister("echo@1.0.0")

	_, ok = r.Get("echo@1.0.0")
	assert.False(t, ok)

	results := r.Query(QueryFilter{NameSubstring: "echo"})
	assert.Empty(t, results)
}

func TestRegistry_ExecuteRejectsInsufficientTrustLevel(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(Capability{
		Name:        "privileged.op",
		Version:     "1.0.0",
		Description: "requires elevated trust",
		ParamSchema: map[string]any{},
	}, func(_ CallContext, _ valuetype.Value) (valuetype.Value, error) {
		return valuetype.Null(), nil
	}, nil))

	comp := Composition{
		ID:        "gated",
		Steps:     []Step{{CapabilityID: "privileged.op@1.0.0"}},
		Strategy:  StrategySequential,
		ErrPolicy: PolicyFailFast,
		Security:  SecurityPolicy{MinTrustLevel: TrustTrusted},
	}
	require.NoError(t, r.CreateComposition(comp))

	_, err := r.Execute("gated", valuetype.Object(nil), CallContext{TrustLevel: TrustBasic})
	assert.Error(t, err)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }

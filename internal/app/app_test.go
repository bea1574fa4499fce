package app

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/PayRpc/a2a-fabric/internal/config"
	"github.com/PayRpc/a2a-fabric/internal/transport"
)

func testConfig() config.Config {
	cfg := config.Load()
	cfg.NodeID = "test-node"
	return cfg
}

func TestApplication_NewWiresEveryComponent(t *testing.T) {
	a := New(testConfig(), zaptest.NewLogger(t), prometheus.NewRegistry(), nil)

	require.NotNil(t, a.Transport)
	require.NotNil(t, a.Registry)
	require.NotNil(t, a.Router)
	require.NotNil(t, a.Breakers)
	require.NotNil(t, a.Predictor)
	require.NotNil(t, a.Strategies)
	require.NotNil(t, a.Monitor)
}

func TestApplication_StartIsIdempotent(t *testing.T) {
	a := New(testConfig(), zaptest.NewLogger(t), prometheus.NewRegistry(), nil)

	called := 0
	onMsg := func(transport.Message) { called++ }

	a.Start(onMsg)
	a.Start(onMsg)
	assert.True(t, a.started)

	a.Shutdown()
	assert.False(t, a.started)
}

func TestApplication_ShutdownBeforeStartIsNoop(t *testing.T) {
	a := New(testConfig(), zaptest.NewLogger(t), prometheus.NewRegistry(), nil)
	assert.NotPanics(t, func() { a.Shutdown() })
}

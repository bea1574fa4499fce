package health

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/PayRpc/a2a-fabric/internal/config"
	"github.com/PayRpc/a2a-fabric/internal/lifecycle"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestMonitor_PublishesHealthyWhenWithinThresholds(t *testing.T) {
	sink := lifecycle.NewRecordingSink()
	signals := func() Signals { return Signals{ErrorRate: 0.01, LatencyMs: 50, Availability: 1} }

	m := NewMonitor(5*time.Millisecond, config.AlertThresholds{ErrorRate: 0.5, LatencyMs: 1000, Availability: 0.5}, nil, signals, sink, zaptest.NewLogger(t))
	m.Start()
	defer m.Stop()

	waitFor(t, time.Second, func() bool {
		_, _, _, health, _ := sink.Snapshot()
		return len(health) > 0
	})

	_, _, _, health, _ := sink.Snapshot()
	assert.True(t, health[0].Healthy)
	assert.Equal(t, "fabric", health[0].Component)
}

func TestMonitor_ErrorRateBreachFiresWebhook(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := lifecycle.NewRecordingSink()
	signals := func() Signals { return Signals{ErrorRate: 0.9, LatencyMs: 10, Availability: 1} }

	m := NewMonitor(5*time.Millisecond, config.AlertThresholds{ErrorRate: 0.2}, []string{srv.URL}, signals, sink, zaptest.NewLogger(t))
	m.Start()
	defer m.Stop()

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&hits) > 0 })

	_, _, _, health, _ := sink.Snapshot()
	require.NotEmpty(t, health)
	assert.False(t, health[0].Healthy)
	assert.Equal(t, "error rate above threshold", health[0].Detail)
}

func TestMonitor_LatencyBreachDetected(t *testing.T) {
	sink := lifecycle.NewRecordingSink()
	signals := func() Signals { return Signals{ErrorRate: 0, LatencyMs: 5000, Availability: 1} }

	m := NewMonitor(5*time.Millisecond, config.AlertThresholds{LatencyMs: 1000}, nil, signals, sink, zaptest.NewLogger(t))
	m.Start()
	defer m.Stop()

	waitFor(t, time.Second, func() bool {
		_, _, _, health, _ := sink.Snapshot()
		return len(health) > 0 && !health[0].Healthy
	})
}

func TestMonitor_AvailabilityBreachDetected(t *testing.T) {
	sink := lifecycle.NewRecordingSink()
	signals := func() Signals { return Signals{ErrorRate: 0, LatencyMs: 10, Availability: 0.1} }

	m := NewMonitor(5*time.Millisecond, config.AlertThresholds{Availability: 0.9}, nil, signals, sink, zaptest.NewLogger(t))
	m.Start()
	defer m.Stop()

	waitFor(t, time.Second, func() bool {
		_, _, _, health, _ := sink.Snapshot()
		return len(health) > 0 && !health[0].Healthy
	})

	_, _, _, health, _ := sink.Snapshot()
	assert.Equal(t, "availability below threshold", health[0].Detail)
}

func TestMonitor_ZeroThresholdsNeverBreach(t *testing.T) {
	sink := lifecycle.NewRecordingSink()
	signals := func() Signals { return Signals{ErrorRate: 1, LatencyMs: 99999, Availability: 0} }

	m := NewMonitor(5*time.Millisecond, config.AlertThresholds{}, nil, signals, sink, zaptest.NewLogger(t))
	m.Start()
	defer m.Stop()

	waitFor(t, time.Second, func() bool {
		_, _, _, health, _ := sink.Snapshot()
		return len(health) > 0
	})

	_, _, _, health, _ := sink.Snapshot()
	for _, e := range health {
		assert.True(t, e.Healthy, "no threshold configured means nothing can breach")
	}
}

func TestMonitor_StopIsIdempotentAndHaltsTicks(t *testing.T) {
	sink := lifecycle.NewRecordingSink()
	signals := func() Signals { return Signals{ErrorRate: 0, LatencyMs: 0, Availability: 1} }

	m := NewMonitor(5*time.Millisecond, config.AlertThresholds{}, nil, signals, sink, zaptest.NewLogger(t))
	m.Start()

	waitFor(t, time.Second, func() bool {
		_, _, _, health, _ := sink.Snapshot()
		return len(health) > 0
	})

	assert.NotPanics(t, func() {
		m.Stop()
		m.Stop()
	})

	_, _, _, before, _ := sink.Snapshot()
	time.Sleep(30 * time.Millisecond)
	_, _, _, after, _ := sink.Snapshot()
	assert.Equal(t, len(before), len(after), "no further ticks should publish after Stop")
}

func TestMonitor_WebhookDeliveryFailureDoesNotCrashLoop(t *testing.T) {
	sink := lifecycle.NewRecordingSink()
	signals := func() Signals { return Signals{ErrorRate: 1, LatencyMs: 0, Availability: 1} }

	m := NewMonitor(5*time.Millisecond, config.AlertThresholds{ErrorRate: 0.1}, []string{"http://127.0.0.1:0"}, signals, sink, zaptest.NewLogger(t))
	m.Start()
	defer m.Stop()

	waitFor(t, time.Second, func() bool {
		_, _, _, health, _ := sink.Snapshot()
		return len(health) >= 2
	})
}

func TestMonitor_DefaultIntervalAppliedWhenNonPositive(t *testing.T) {
	m := NewMonitor(0, config.AlertThresholds{}, nil, func() Signals { return Signals{} }, nil, zaptest.NewLogger(t))
	assert.Equal(t, 30*time.Second, m.interval)
}

// Monitor runs the health-check-interval / alert-threshold / webhook-URL
// triad spec.md section 6 lists under "configuration", grounded on the
// teacher's network manager HealthChecker polling loop
// (other_examples' 373576b5 internal-network-manager.go).
package health

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PayRpc/a2a-fabric/internal/config"
	"github.com/PayRpc/a2a-fabric/internal/lifecycle"
)

// Signals is the live health snapshot a Monitor evaluates against its
// configured thresholds each tick. The shell has no direct visibility into
// request volume, so callers compute these from their own running state
// (the Router's Metrics/Health, the LatencyPredictor's Average).
type Signals struct {
	ErrorRate    float64
	LatencyMs    float64
	Availability float64
}

// SignalFunc produces the current Signals snapshot on demand.
type SignalFunc func() Signals

// Monitor polls SignalFunc every interval, publishes a SystemHealthUpdated
// lifecycle event each tick, and POSTs to every configured webhook URL
// when a threshold is breached (spec section 6).
type Monitor struct {
	interval    time.Duration
	thresholds  config.AlertThresholds
	webhookURLs []string
	signals     SignalFunc
	sink        lifecycle.Sink
	logger      *zap.Logger
	httpClient  *http.Client

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor constructs a Monitor. signals must not be nil. A nil sink
// defaults to a no-op.
func NewMonitor(interval time.Duration, thresholds config.AlertThresholds, webhookURLs []string, signals SignalFunc, sink lifecycle.Sink, logger *zap.Logger) *Monitor {
	if sink == nil {
		sink = lifecycle.NopSink{}
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		interval:    interval,
		thresholds:  thresholds,
		webhookURLs: webhookURLs,
		signals:     signals,
		sink:        sink,
		logger:      logger,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		stopCh:      make(chan struct{}),
	}
}

// Start begins the periodic check loop in a background goroutine.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop ends the check loop and waits for it to exit. Safe to call more
// than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stopCh:
			return
		}
	}
}

// check evaluates one Signals snapshot against the configured thresholds,
// publishes the outcome, and fires webhooks on breach. Zero-value
// thresholds are not checked, matching the Conditions convention
// elsewhere in this package.
func (m *Monitor) check() {
	s := m.signals()

	breached := false
	detail := "within thresholds"
	switch {
	case m.thresholds.ErrorRate > 0 && s.ErrorRate > m.thresholds.ErrorRate:
		breached, detail = true, "error rate above threshold"
	case m.thresholds.LatencyMs > 0 && s.LatencyMs > float64(m.thresholds.LatencyMs):
		breached, detail = true, "latency above threshold"
	case m.thresholds.Availability > 0 && s.Availability < m.thresholds.Availability:
		breached, detail = true, "availability below threshold"
	}

	m.sink.SystemHealthUpdated(lifecycle.HealthEvent{
		Component: "fabric",
		Healthy:   !breached,
		Detail:    detail,
		At:        time.Now(),
	})

	if breached {
		m.alert(s, detail)
	}
}

func (m *Monitor) alert(s Signals, detail string) {
	body, err := json.Marshal(map[string]any{
		"detail":       detail,
		"errorRate":    s.ErrorRate,
		"latencyMs":    s.LatencyMs,
		"availability": s.Availability,
	})
	if err != nil {
		return
	}
	for _, url := range m.webhookURLs {
		go m.postWebhook(url, body)
	}
}

func (m *Monitor) postWebhook(url string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("alert webhook delivery failed", zap.String("url", url), zap.Error(err))
		}
		return
	}
	resp.Body.Close()
}

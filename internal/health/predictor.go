// LatencyPredictor is adapted from the teacher's internal/performance
// PerformanceManager idiom (Config-driven, *zap.Logger-owning, exposing a
// GetCurrentStats()-style snapshot) but generalized from raw buffer-pool
// and runtime tuning into the online latency regression spec.md section
// 4.D calls for: "moving-average regression over recent samples (up to
// 1000) of (promptLength, hasMultimodal, maxTokens) -> observedLatency".
package health

import (
	"math"
	"sync"
)

const maxLatencySamples = 1000
const maxPredictedLatencyMs = 30000

// LatencySample is one observed (features, outcome) pair.
type LatencySample struct {
	PromptLength  int
	HasMultimodal bool
	MaxTokens     int
	ObservedMs    float64
}

// LatencyPredictor keeps a bounded window of recent samples and predicts
// latency for a new request as a distance-weighted moving average over
// that window: nearby requests (in normalized feature space) weigh more
// than distant ones. Safe for concurrent use.
type LatencyPredictor struct {
	mu      sync.RWMutex
	samples []LatencySample
	next    int
	full    bool
}

// NewLatencyPredictor constructs an empty predictor.
func NewLatencyPredictor() *LatencyPredictor {
	return &LatencyPredictor{samples: make([]LatencySample, maxLatencySamples)}
}

// Record trains the predictor online with one completed request's actual
// latency (spec section 4.D: "trained online on every completed
// request").
func (p *LatencyPredictor) Record(s LatencySample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples[p.next] = s
	p.next = (p.next + 1) % maxLatencySamples
	if p.next == 0 {
		p.full = true
	}
}

// Predict returns a distance-weighted moving average of observed
// latencies over the current window, capped at 30s. Returns 0 when there
// is no history yet.
func (p *LatencyPredictor) Predict(promptLength int, hasMultimodal bool, maxTokens int) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := p.next
	if p.full {
		n = maxLatencySamples
	}
	if n == 0 {
		return 0
	}

	var weightedSum, weightTotal float64
	for i := 0; i < n; i++ {
		s := p.samples[i]
		d := featureDistance(promptLength, hasMultimodal, maxTokens, s)
		w := 1.0 / (1.0 + d)
		weightedSum += w * s.ObservedMs
		weightTotal += w
	}
	if weightTotal == 0 {
		return 0
	}
	prediction := weightedSum / weightTotal
	if prediction > maxPredictedLatencyMs {
		return maxPredictedLatencyMs
	}
	return prediction
}

// SampleCount reports how many samples are currently in the window.
func (p *LatencyPredictor) SampleCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.full {
		return maxLatencySamples
	}
	return p.next
}

// Average returns the plain mean observed latency over the current
// window, unweighted by feature distance, for use as a coarse system-wide
// signal (the health Monitor's latency threshold check) rather than a
// per-request prediction.
func (p *LatencyPredictor) Average() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := p.next
	if p.full {
		n = maxLatencySamples
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += p.samples[i].ObservedMs
	}
	return sum / float64(n)
}

func featureDistance(promptLength int, hasMultimodal bool, maxTokens int, s LatencySample) float64 {
	dp := float64(promptLength-s.PromptLength) / 1000.0
	dt := float64(maxTokens-s.MaxTokens) / 4096.0
	dm := 0.0
	if hasMultimodal != s.HasMultimodal {
		dm = 1.0
	}
	return math.Sqrt(dp*dp + dt*dt + dm*dm)
}

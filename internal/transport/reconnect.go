package transport

import (
	"sync"
	"time"
)

// DefaultMaxBackoff is the reconnection delay ceiling (spec section 3/4.A).
const DefaultMaxBackoff = 30 * time.Second

// reconnectState tracks a single connection's reconnection attempts (spec
// section 3).
type reconnectState struct {
	mu            sync.Mutex
	reconnecting  bool
	attempts      int
	lastAttempt   time.Time
	cap           int
	multiplier    float64
}

func newReconnectState(cap int) reconnectState {
	if cap <= 0 {
		cap = 5
	}
	return reconnectState{cap: cap, multiplier: 2}
}

// nextDelay computes min(base * mult^(attempts-1), 30s) and reports
// whether the attempt cap has been reached (spec section 4.A).
func (r *reconnectState) nextDelay(base time.Duration) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attempts >= r.cap {
		return 0, false
	}
	r.attempts++
	r.lastAttempt = time.Now()
	delay := base
	for i := 1; i < r.attempts; i++ {
		delay = time.Duration(float64(delay) * r.multiplier)
		if delay >= DefaultMaxBackoff {
			delay = DefaultMaxBackoff
			break
		}
	}
	if delay > DefaultMaxBackoff {
		delay = DefaultMaxBackoff
	}
	return delay, true
}

func (r *reconnectState) begin() {
	r.mu.Lock()
	r.reconnecting = true
	r.mu.Unlock()
}

func (r *reconnectState) finish(success bool) {
	r.mu.Lock()
	r.reconnecting = false
	if success {
		r.attempts = 0
	}
	r.mu.Unlock()
}

func (r *reconnectState) isReconnecting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconnecting
}

func (r *reconnectState) exhausted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts >= r.cap
}

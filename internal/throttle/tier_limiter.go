// Package throttle enforces per-user-tier request rate limits (spec
// section 4.C request shape: "tier limits"; section 5 "back-pressure").
// Adapted from the teacher's EndpointThrottle (per-endpoint backoff and
// health scoring keyed by URL) into a per-tier token-bucket limiter keyed
// by config.UserTier, since the fabric's tiers — not individual HTTP
// endpoints — are what spec.md gates on.
package throttle

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/PayRpc/a2a-fabric/internal/config"
	aerrors "github.com/PayRpc/a2a-fabric/internal/errors"
)

// TierLimiter owns one token-bucket rate.Limiter per user tier, sized from
// config.TierLimits (RequestsPerSecond, BurstCapacity).
type TierLimiter struct {
	mu       sync.RWMutex
	limiters map[config.UserTier]*rate.Limiter
}

// NewTierLimiter builds a limiter for every tier in limits.
func NewTierLimiter(limits map[config.UserTier]config.TierLimits) *TierLimiter {
	tl := &TierLimiter{limiters: make(map[config.UserTier]*rate.Limiter, len(limits))}
	for tier, lim := range limits {
		tl.limiters[tier] = rate.NewLimiter(rate.Limit(lim.RequestsPerSecond), lim.BurstCapacity)
	}
	return tl
}

// Allow reports whether a request for tier may proceed right now,
// consuming one token if so. An unknown tier is always allowed (no
// configured limit to enforce).
func (tl *TierLimiter) Allow(tier config.UserTier) bool {
	tl.mu.RLock()
	limiter, ok := tl.limiters[tier]
	tl.mu.RUnlock()
	if !ok {
		return true
	}
	return limiter.Allow()
}

// Admit is Allow expressed as the fabric's structured back-pressure
// error: callers that are throttled receive resource_exhausted (spec
// section 5 "Back-pressure").
func (tl *TierLimiter) Admit(tier config.UserTier) error {
	if tl.Allow(tier) {
		return nil
	}
	return aerrors.New(aerrors.TypeResourceExhausted, "throttle", "rate limit exceeded for tier: "+string(tier))
}

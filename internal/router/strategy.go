package router

import (
	"sort"

	"github.com/PayRpc/a2a-fabric/internal/config"
)

// strategyWeights assigns how much each dimension contributes to a
// provider's score under a RoutingStrategy (spec section 4.C "routing
// strategy"); lower normalized cost/latency is better, higher quality is
// better, so cost/latency are subtracted and quality is added.
type strategyWeights struct {
	latency float64
	cost    float64
	quality float64
}

var weightsByStrategy = map[config.RoutingStrategy]strategyWeights{
	config.StrategyLatency:  {latency: 1.0, cost: 0.0, quality: 0.0},
	config.StrategyCost:     {latency: 0.0, cost: 1.0, quality: 0.0},
	config.StrategyQuality:  {latency: 0.0, cost: 0.0, quality: 1.0},
	config.StrategyBalanced: {latency: 0.34, cost: 0.33, quality: 0.33},
}

// rankProviders scores and orders candidates by strategy, breaking ties by
// provider id for determinism (spec section 4.C "ties broken by provider
// id").
func rankProviders(candidates []Provider, strategy config.RoutingStrategy, req Request) []Decision {
	w, ok := weightsByStrategy[strategy]
	if !ok {
		w = weightsByStrategy[config.StrategyBalanced]
	}

	var maxLatency, maxCost float64
	profiles := make(map[string]CapabilityProfile, len(candidates))
	for _, p := range candidates {
		profile := p.Profile()
		profiles[p.ID()] = profile
		if profile.AvgLatencyMs > maxLatency {
			maxLatency = profile.AvgLatencyMs
		}
		if profile.CostPer1kTokens > maxCost {
			maxCost = profile.CostPer1kTokens
		}
	}

	decisions := make([]Decision, 0, len(candidates))
	for _, p := range candidates {
		health := p.Health()
		if !health.Available || health.OpenCircuit {
			continue
		}
		profile := profiles[p.ID()]

		if req.MultimodalHandles != nil && len(req.MultimodalHandles) > 0 && !profile.SupportsMultimodal {
			continue
		}
		if req.MaxTokens > profile.MaxContextTokens && profile.MaxContextTokens > 0 {
			continue
		}
		if req.LatencyTargetMs > 0 && profile.AvgLatencyMs > float64(req.LatencyTargetMs) {
			continue
		}

		normLatency := safeNorm(profile.AvgLatencyMs, maxLatency)
		normCost := safeNorm(profile.CostPer1kTokens, maxCost)
		// QualityScore is already expressed 0..1 by convention of the
		// registering provider.
		score := w.quality*profile.QualityScore - w.latency*normLatency - w.cost*normCost

		decisions = append(decisions, Decision{
			ProviderID: p.ID(),
			Score:      score,
		})
	}

	sort.SliceStable(decisions, func(i, j int) bool {
		if decisions[i].Score != decisions[j].Score {
			return decisions[i].Score > decisions[j].Score
		}
		return decisions[i].ProviderID < decisions[j].ProviderID
	})
	return decisions
}

func safeNorm(v, max float64) float64 {
	if max <= 0 {
		return 0
	}
	ratio := v / max
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

package router

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/PayRpc/a2a-fabric/internal/config"
)

// canonicalRequest is the subset of Request fields that affect routing and
// caching, serialized in a field-stable order so exact fingerprints are
// reproducible across process restarts (spec section 4.C "fingerprint
// over canonicalized request + routing-affecting parameters").
type canonicalRequest struct {
	Prompt        string   `json:"prompt"`
	MaxTokens     int      `json:"max_tokens"`
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"top_p"`
	TopK          int      `json:"top_k"`
	StopSequences []string `json:"stop_sequences"`
	UserTier      string   `json:"user_tier"`
}

func toCanonical(req Request) canonicalRequest {
	stops := append([]string(nil), req.StopSequences...)
	sort.Strings(stops)
	return canonicalRequest{
		Prompt:        req.Prompt,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		StopSequences: stops,
		UserTier:      string(req.UserTier),
	}
}

// fingerprint computes the cache key for req under strategy (spec section
// 4.C "fingerprint cache" key strategies).
func fingerprint(req Request, strategy config.CacheKeyStrategy) string {
	switch strategy {
	case config.CacheKeySemantic:
		return semanticKey(req)
	case config.CacheKeyHybrid:
		return exactKey(req)
	default: // exact
		return exactKey(req)
	}
}

// fingerprintFallback returns the secondary lookup key for the hybrid
// strategy (spec section 4.C "hybrid: exact key with a semantic fallback
// lookup"), or "" for strategies with no fallback.
func fingerprintFallback(req Request, strategy config.CacheKeyStrategy) string {
	if strategy != config.CacheKeyHybrid {
		return ""
	}
	return semanticKey(req)
}

func exactKey(req Request) string {
	canonical := toCanonical(req)
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return "exact:" + hex.EncodeToString(sum[:])
}

// semanticKey normalizes the prompt (lowercased, whitespace-collapsed) and
// buckets numeric parameters before hashing, so near-identical requests
// collide on the same cache entry (spec section 4.C "semantic").
func semanticKey(req Request) string {
	normalizedPrompt := strings.Join(strings.Fields(strings.ToLower(req.Prompt)), " ")
	canonical := canonicalRequest{
		Prompt:      normalizedPrompt,
		MaxTokens:   bucket(req.MaxTokens, 256),
		Temperature: bucketFloat(req.Temperature, 0.1),
		TopP:        bucketFloat(req.TopP, 0.1),
		TopK:        bucket(req.TopK, 5),
		UserTier:    string(req.UserTier),
	}
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return "semantic:" + hex.EncodeToString(sum[:])
}

func bucket(v, size int) int {
	if size <= 0 {
		return v
	}
	return (v / size) * size
}

func bucketFloat(v, size float64) float64 {
	if size <= 0 {
		return v
	}
	return float64(int(v/size)) * size
}

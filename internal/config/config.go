// Package config loads the fabric's declarative runtime configuration:
// routing strategy, retry/backoff policy, circuit-breaker thresholds,
// cache sizing, health-check cadence, alert thresholds, and the transport
// list (spec section 6, "Configuration").
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// UserTier gates per-tier request limits and maxTokens clamping (spec
// section 4.C request shape).
type UserTier string

const (
	TierFree       UserTier = "free"
	TierPro        UserTier = "pro"
	TierEnterprise UserTier = "enterprise"
	TierUltra      UserTier = "ultra"
)

// TierLimits bounds what a given user tier may request.
type TierLimits struct {
	MaxTokens         int     `json:"max_tokens"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	BurstCapacity     int     `json:"burst_capacity"`
}

// RoutingStrategy selects how the Router ranks providers (spec section
// 4.C).
type RoutingStrategy string

const (
	StrategyLatency  RoutingStrategy = "latency"
	StrategyCost     RoutingStrategy = "cost"
	StrategyQuality  RoutingStrategy = "quality"
	StrategyBalanced RoutingStrategy = "balanced"
)

// BackoffKind selects the fallback executor's retry delay curve.
type BackoffKind string

const (
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
	BackoffFixed       BackoffKind = "fixed"
)

// CacheKeyStrategy selects the fingerprint cache's key derivation (spec
// section 4.C).
type CacheKeyStrategy string

const (
	CacheKeyExact    CacheKeyStrategy = "exact"
	CacheKeySemantic CacheKeyStrategy = "semantic"
	CacheKeyHybrid   CacheKeyStrategy = "hybrid"
)

// ProtocolKind is a transport's wire protocol (spec section 3).
type ProtocolKind string

const (
	ProtocolWebSocket ProtocolKind = "websocket"
	ProtocolHTTP2     ProtocolKind = "http2"
	ProtocolGRPC      ProtocolKind = "grpc"
	ProtocolFramedTCP ProtocolKind = "framed-tcp"
)

// AlertThresholds gates when the shell raises a webhook alert.
type AlertThresholds struct {
	ErrorRate    float64       `json:"error_rate"`
	LatencyMs    int           `json:"latency_ms"`
	Availability float64       `json:"availability"`
}

// Config holds the fabric's full runtime configuration.
type Config struct {
	NodeID string `json:"node_id"`

	// Routing
	RoutingStrategy   RoutingStrategy `json:"routing_strategy"`
	LatencyTargetMs   int             `json:"latency_target_ms"`
	FallbackChain     []string        `json:"fallback_chain"`
	EmergencyFallback string          `json:"emergency_fallback"`

	// Retry / backoff
	MaxRetries    int           `json:"max_retries"`
	BackoffKind   BackoffKind   `json:"backoff_kind"`
	RetryDelay    time.Duration `json:"retry_delay"`
	MaxReconnects int           `json:"max_reconnects"`

	// Circuit breaker
	CircuitFailureThreshold int           `json:"circuit_failure_threshold"`
	CircuitResetTimeout     time.Duration `json:"circuit_reset_timeout"`
	CircuitHalfOpenMaxCalls int           `json:"circuit_half_open_max_calls"`

	// Fingerprint cache
	CacheKeyStrategy CacheKeyStrategy `json:"cache_key_strategy"`
	CacheTTL         time.Duration    `json:"cache_ttl"`
	CacheMaxEntries  int              `json:"cache_max_entries"`

	// Health monitoring
	HealthCheckInterval time.Duration   `json:"health_check_interval"`
	AlertThresholds     AlertThresholds `json:"alert_thresholds"`
	AlertWebhookURLs    []string        `json:"alert_webhook_urls"`

	// Transport pool
	TransportList        []ProtocolKind `json:"transport_list"`
	MaxConnsPerPeer       int           `json:"max_conns_per_peer"`
	MaxConnsTotal         int           `json:"max_conns_total"`
	ConnectTimeout        time.Duration `json:"connect_timeout"`
	SendTimeout           time.Duration `json:"send_timeout"`
	IdleTTL               time.Duration `json:"idle_ttl"`
	CleanupInterval       time.Duration `json:"cleanup_interval"`
	UnknownProtocolFallback bool        `json:"unknown_protocol_fallback"`

	// Per-tier limits
	TierLimits map[UserTier]TierLimits `json:"tier_limits"`
}

// Load reads configuration from the process environment, applying
// .env / .env.<NODE_ENV> overlays the way the teacher's config loader
// does.
func Load() Config {
	loadEnvironmentConfig()

	cfg := Config{
		NodeID: getEnv("NODE_ID", "node-1"),

		RoutingStrategy:   RoutingStrategy(getEnv("ROUTING_STRATEGY", string(StrategyBalanced))),
		LatencyTargetMs:   getEnvInt("LATENCY_TARGET_MS", 500),
		FallbackChain:     getEnvSlice("FALLBACK_CHAIN", []string{}),
		EmergencyFallback: getEnv("EMERGENCY_FALLBACK", ""),

		MaxRetries:    getEnvInt("MAX_RETRIES", 3),
		BackoffKind:   BackoffKind(getEnv("BACKOFF_KIND", string(BackoffExponential))),
		RetryDelay:    time.Duration(getEnvInt("RETRY_DELAY_MS", 100)) * time.Millisecond,
		MaxReconnects: getEnvInt("MAX_RECONNECTS", 3),

		CircuitFailureThreshold: getEnvInt("CIRCUIT_FAILURE_THRESHOLD", 5),
		CircuitResetTimeout:     time.Duration(getEnvInt("CIRCUIT_RESET_TIMEOUT_SEC", 30)) * time.Second,
		CircuitHalfOpenMaxCalls: getEnvInt("CIRCUIT_HALF_OPEN_MAX_CALLS", 1),

		CacheKeyStrategy: CacheKeyStrategy(getEnv("CACHE_KEY_STRATEGY", string(CacheKeyHybrid))),
		CacheTTL:         time.Duration(getEnvInt("CACHE_TTL_SEC", 300)) * time.Second,
		CacheMaxEntries:  getEnvInt("CACHE_MAX_ENTRIES", 10000),

		HealthCheckInterval: time.Duration(getEnvInt("HEALTH_CHECK_INTERVAL_SEC", 15)) * time.Second,
		AlertThresholds: AlertThresholds{
			ErrorRate:    getEnvFloat("ALERT_ERROR_RATE", 0.1),
			LatencyMs:    getEnvInt("ALERT_LATENCY_MS", 2000),
			Availability: getEnvFloat("ALERT_AVAILABILITY", 0.95),
		},
		AlertWebhookURLs: getEnvSlice("ALERT_WEBHOOK_URLS", []string{}),

		TransportList:           parseProtocols(getEnvSlice("TRANSPORT_LIST", []string{"websocket", "http2", "framed-tcp"})),
		MaxConnsPerPeer:         getEnvInt("MAX_CONNS_PER_PEER", 5),
		MaxConnsTotal:           getEnvInt("MAX_CONNS_TOTAL", 1000),
		ConnectTimeout:          time.Duration(getEnvInt("CONNECT_TIMEOUT_SEC", 10)) * time.Second,
		SendTimeout:             time.Duration(getEnvInt("SEND_TIMEOUT_SEC", 30)) * time.Second,
		IdleTTL:                 time.Duration(getEnvInt("IDLE_TTL_SEC", 600)) * time.Second,
		CleanupInterval:         time.Duration(getEnvInt("CLEANUP_INTERVAL_SEC", 300)) * time.Second,
		UnknownProtocolFallback: getEnvBool("UNKNOWN_PROTOCOL_FALLBACK", true),
	}

	cfg.TierLimits = defaultTierLimits()
	return cfg
}

func defaultTierLimits() map[UserTier]TierLimits {
	return map[UserTier]TierLimits{
		TierFree:       {MaxTokens: 1024, RequestsPerSecond: 1, BurstCapacity: 5},
		TierPro:        {MaxTokens: 8192, RequestsPerSecond: 10, BurstCapacity: 50},
		TierEnterprise: {MaxTokens: 32768, RequestsPerSecond: 50, BurstCapacity: 250},
		TierUltra:      {MaxTokens: 131072, RequestsPerSecond: 200, BurstCapacity: 1000},
	}
}

func parseProtocols(raw []string) []ProtocolKind {
	out := make([]ProtocolKind, 0, len(raw))
	for _, r := range raw {
		out = append(out, ProtocolKind(strings.TrimSpace(r)))
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || v == "true"
	}
	return def
}

func getEnvSlice(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	result := make([]string, len(parts))
	for i, part := range parts {
		result[i] = strings.TrimSpace(part)
	}
	return result
}

// loadEnvironmentConfig loads .env then an optional .env.<NODE_ENV> overlay.
func loadEnvironmentConfig() {
	if err := godotenv.Load(); err == nil {
		log.Printf("config: loaded .env")
	}
	if env := getEnv("NODE_ENV", ""); env != "" {
		envFile := fmt.Sprintf(".env.%s", env)
		if err := godotenv.Load(envFile); err == nil {
			log.Printf("config: loaded environment overlay %s", envFile)
		}
	}
}

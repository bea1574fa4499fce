package transport

import (
	"time"

	aerrors "github.com/PayRpc/a2a-fabric/internal/errors"
	"github.com/PayRpc/a2a-fabric/internal/config"
)

// AuthMode is how a connection authenticates to its peer (spec section 6).
type AuthMode string

const (
	AuthNone        AuthMode = "none"
	AuthBearerToken AuthMode = "token"
	AuthCertificate AuthMode = "certificate"
	AuthOAuth2      AuthMode = "oauth2"
)

// TLSMaterial bundles the certificate material a connection may present or
// require (spec section 3).
type TLSMaterial struct {
	CAFile         string
	ClientCertFile string
	ClientKeyFile  string
	Verify         bool
}

// PeerConfig is the per-peer transport configuration (spec section 3).
type PeerConfig struct {
	Protocol       config.ProtocolKind
	Host           string
	Port           int
	Path           string // defaults to "/a2a" for HTTP2/gRPC
	TLS            *TLSMaterial
	Auth           AuthMode
	BearerToken    string
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	KeepAlive      bool
	MaxRetries     int
	BaseDelay      time.Duration
}

// Validate enforces the spec section 3 invariant: port in [1,65535] when
// present; host non-empty.
func (c PeerConfig) Validate() error {
	if c.Host == "" {
		return aerrors.New(aerrors.TypeValidation, "transport.config", "host must not be empty")
	}
	if c.Port != 0 && (c.Port < 1 || c.Port > 65535) {
		return aerrors.New(aerrors.TypeValidation, "transport.config", "port out of range [1,65535]")
	}
	return nil
}

func (c PeerConfig) pathOrDefault() string {
	if c.Path != "" {
		return c.Path
	}
	return "/a2a"
}

func (c PeerConfig) connectTimeoutOrDefault() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return 10 * time.Second
}

func (c PeerConfig) sendTimeoutOrDefault() time.Duration {
	if c.SendTimeout > 0 {
		return c.SendTimeout
	}
	return 30 * time.Second
}

func (c PeerConfig) maxRetriesOrDefault() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return 3
}

func (c PeerConfig) baseDelayOrDefault() time.Duration {
	if c.BaseDelay > 0 {
		return c.BaseDelay
	}
	return 250 * time.Millisecond
}

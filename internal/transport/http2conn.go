// http2Conn opens one multiplexed HTTP/2 session per connection and sends
// each message as its own POST stream, grounded on
// other_examples/1660248c_docker-compose__vendor-golang.org-x-net-http2-transport.go
// (golang.org/x/net/http2.Transport wrapping a single TCP/TLS socket).
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	aerrors "github.com/PayRpc/a2a-fabric/internal/errors"
	"golang.org/x/net/http2"
)

type http2Conn struct {
	client  *http.Client
	baseURL string
	cfg     PeerConfig
	mu      sync.RWMutex
	closed  bool
}

func dialHTTP2(peerID string, cfg PeerConfig) (*http2Conn, error) {
	scheme := "http"
	var tlsCfg *tls.Config
	if cfg.TLS != nil {
		scheme = "https"
		tlsCfg = &tls.Config{InsecureSkipVerify: !cfg.TLS.Verify}
	}

	transport := &http2.Transport{
		AllowHTTP: scheme == "http",
		DialTLSContext: func(_ context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			if scheme == "http" {
				return net.DialTimeout(network, addr, cfg.connectTimeoutOrDefault())
			}
			return tls.DialWithDialer(&net.Dialer{Timeout: cfg.connectTimeoutOrDefault()}, network, addr, tlsCfg)
		},
	}

	client := &http.Client{Transport: transport, Timeout: cfg.sendTimeoutOrDefault()}
	base := fmt.Sprintf("%s://%s:%d%s", scheme, cfg.Host, cfg.Port, cfg.pathOrDefault())

	return &http2Conn{client: client, baseURL: base, cfg: cfg}, nil
}

func (h *http2Conn) send(m Message, timeout time.Duration) (Message, error) {
	body, err := m.Marshal()
	if err != nil {
		return Message{}, aerrors.Wrap(aerrors.TypeSerialization, "transport.http2", "marshal failed", err)
	}

	req, err := http.NewRequest(http.MethodPost, h.baseURL, bytes.NewReader(body))
	if err != nil {
		return Message{}, aerrors.Wrap(aerrors.TypeProtocol, "transport.http2", "build request failed", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("content-length", fmt.Sprintf("%d", len(body)))
	if h.cfg.Auth == AuthBearerToken && h.cfg.BearerToken != "" {
		req.Header.Set("authorization", "Bearer "+h.cfg.BearerToken)
	}

	client := *h.client
	client.Timeout = timeout

	resp, err := client.Do(req)
	if err != nil {
		return Message{}, aerrors.Wrap(aerrors.TypeRouting, "transport.http2", "request failed", err).WithRetryable(true)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Message{}, aerrors.Wrap(aerrors.TypeSerialization, "transport.http2", "read response failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode >= 500
		return Message{}, aerrors.New(aerrors.TypeRouting, "transport.http2",
			fmt.Sprintf("unexpected status %d", resp.StatusCode)).
			WithRetryable(retryable).WithContext("status", resp.StatusCode)
	}

	return Unmarshal(respBody)
}

func (h *http2Conn) notify(m Message) error {
	_, err := h.send(m, h.cfg.sendTimeoutOrDefault())
	return err
}

func (h *http2Conn) healthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.closed
}

func (h *http2Conn) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if t, ok := h.client.Transport.(*http2.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

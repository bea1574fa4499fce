// Package transport is the A2A fabric's Transport Layer (component A):
// protocol-agnostic connection management over websocket, HTTP/2,
// gRPC-over-HTTP/2, and framed-TCP, pooled per peer with reconnection and
// idle reaping. Grounded on the teacher's internal/p2p package (peer dial,
// handshake, and reconnect loop) generalized from a single Bitcoin wire
// protocol to four pluggable protoConn adapters.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/PayRpc/a2a-fabric/internal/config"
	aerrors "github.com/PayRpc/a2a-fabric/internal/errors"
	"github.com/PayRpc/a2a-fabric/internal/health"
	"github.com/PayRpc/a2a-fabric/internal/lifecycle"
	"github.com/PayRpc/a2a-fabric/internal/metrics"
	"github.com/PayRpc/a2a-fabric/internal/valuetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errConnectionNotReady = aerrors.New(aerrors.TypeAgentUnavailable, "transport", "connection has no live handle")

// Transport is the fabric's connection manager: dial, pool, send, broadcast,
// and reconnect across every configured protocol (spec section 4.A).
type Transport struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Registry
	sink    lifecycle.Sink

	pool *Pool

	lbMu          sync.Mutex
	loadBalancers map[string]*health.LoadBalancer

	mu      sync.RWMutex
	peers   map[string]PeerConfig
	inbound func(Message)

	stopReaper context.CancelFunc
	wg         sync.WaitGroup

	started bool
}

// New constructs a Transport. sink may be nil, in which case lifecycle
// events are discarded.
func New(cfg config.Config, logger *zap.Logger, reg *metrics.Registry, sink lifecycle.Sink) *Transport {
	if sink == nil {
		sink = lifecycle.NopSink{}
	}
	return &Transport{
		cfg:           cfg,
		logger:        logger,
		metrics:       reg,
		sink:          sink,
		pool:          NewPool(cfg.MaxConnsPerPeer, cfg.MaxConnsTotal),
		peers:         make(map[string]PeerConfig),
		loadBalancers: make(map[string]*health.LoadBalancer),
	}
}

// Initialize starts the idle-connection reaper and registers the handler
// invoked for messages that are not correlated responses (spec section
// 4.A "initialize").
func (t *Transport) Initialize(onMessage func(Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	t.inbound = onMessage

	ctx, cancel := context.WithCancel(context.Background())
	t.stopReaper = cancel
	interval := t.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t.wg.Add(1)
	go t.reapLoop(ctx, interval)
}

// Shutdown stops the reaper and closes every pooled connection (spec
// section 4.A "shutdown").
func (t *Transport) Shutdown() {
	t.mu.Lock()
	if t.stopReaper != nil {
		t.stopReaper()
	}
	t.mu.Unlock()
	t.wg.Wait()

	for _, c := range t.pool.Snapshot() {
		t.closeConnection(c)
	}
}

func (t *Transport) reapLoop(ctx context.Context, interval time.Duration) {
	defer t.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.reapIdle()
		}
	}
}

func (t *Transport) reapIdle() {
	ttl := t.cfg.IdleTTL
	if ttl <= 0 {
		return
	}
	cutoff := time.Now().Add(-ttl)
	for _, c := range t.pool.Snapshot() {
		if c.LastActivity().Before(cutoff) {
			t.logger.Debug("reaping idle connection", zap.String("peer", c.PeerID), zap.String("conn", c.ID))
			t.closeConnection(c)
		}
	}
}

func (t *Transport) closeConnection(c *Connection) {
	c.setState(StateClosed)
	if h := c.currentHandle(); h != nil {
		_ = h.close()
	}
	t.pool.Remove(c.ID)
	t.metrics.ConnectionsActive.WithLabelValues(string(c.Protocol), c.PeerID).Dec()
	t.sink.ConnectionClosed(lifecycle.ConnectionEvent{ConnectionID: c.ID, PeerID: c.PeerID, Protocol: string(c.Protocol), At: time.Now()})
}

// Connect dials a new connection to peerID using cfg, pools it, and starts
// its reconnect supervisor (spec section 4.A "connect").
func (t *Transport) Connect(peerID string, cfg PeerConfig) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(t.cfg.TransportList) > 0 && !protocolAllowed(t.cfg.TransportList, cfg.Protocol) {
		return nil, aerrors.New(aerrors.TypeValidation, "transport", "protocol not in configured transport list: "+string(cfg.Protocol))
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = t.cfg.MaxReconnects
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = t.cfg.ConnectTimeout
	}

	t.mu.Lock()
	t.peers[peerID] = cfg
	t.mu.Unlock()

	handle, err := t.dial(peerID, cfg)
	if err != nil {
		t.metrics.TransportErrors.WithLabelValues(string(cfg.Protocol), "dial").Inc()
		t.sink.ConnectionError(lifecycle.ConnectionEvent{PeerID: peerID, Protocol: string(cfg.Protocol), At: time.Now(), Err: err})
		return nil, err
	}

	conn := newConnection(peerID, cfg, handle)
	if err := t.pool.Add(conn); err != nil {
		_ = handle.close()
		return nil, err
	}
	conn.markConnected()

	t.metrics.ConnectionsTotal.WithLabelValues(string(cfg.Protocol)).Inc()
	t.metrics.ConnectionsActive.WithLabelValues(string(cfg.Protocol), peerID).Inc()
	t.sink.ConnectionEstablished(lifecycle.ConnectionEvent{ConnectionID: conn.ID, PeerID: peerID, Protocol: string(cfg.Protocol), At: time.Now()})

	go t.watchHealth(conn)
	return conn, nil
}

func protocolAllowed(allowed []config.ProtocolKind, p config.ProtocolKind) bool {
	for _, a := range allowed {
		if a == p {
			return true
		}
	}
	return false
}

func (t *Transport) dial(peerID string, cfg PeerConfig) (protoConn, error) {
	onMessage := func(m Message) {
		t.mu.RLock()
		inbound := t.inbound
		t.mu.RUnlock()
		if inbound != nil {
			inbound(m)
		}
	}

	switch cfg.Protocol {
	case config.ProtocolWebSocket:
		return dialWebSocket(peerID, cfg, t.logger, onMessage)
	case config.ProtocolHTTP2:
		return dialHTTP2(peerID, cfg)
	case config.ProtocolGRPC:
		return dialGRPC(peerID, cfg, onMessage)
	case config.ProtocolFramedTCP:
		return dialTCP(peerID, cfg, onMessage)
	default:
		if t.cfg.UnknownProtocolFallback {
			t.logger.Warn("unknown protocol, falling back to http2", zap.String("protocol", string(cfg.Protocol)))
			fallback := cfg
			fallback.Protocol = config.ProtocolHTTP2
			return dialHTTP2(peerID, fallback)
		}
		return nil, aerrors.New(aerrors.TypeValidation, "transport", "unknown protocol: "+string(cfg.Protocol))
	}
}

// watchHealth supervises a single connection, triggering exponential-backoff
// reconnection once its handle reports unhealthy (spec section 4.A
// "reconnection").
func (t *Transport) watchHealth(conn *Connection) {
	state := newReconnectState(conn.Config.maxRetriesOrDefault())
	for {
		time.Sleep(2 * time.Second)
		if conn.State() == StateClosed {
			return
		}
		handle := conn.currentHandle()
		if handle != nil && handle.healthy() {
			continue
		}

		conn.setState(StateReconnecting)
		state.begin()
		delay, ok := state.nextDelay(conn.Config.baseDelayOrDefault())
		if !ok {
			t.logger.Warn("reconnection attempts exhausted, dropping connection",
				zap.String("peer", conn.PeerID), zap.String("conn", conn.ID))
			t.closeConnection(conn)
			return
		}
		time.Sleep(delay)

		t.metrics.ReconnectAttempts.WithLabelValues(conn.PeerID).Inc()
		newHandle, err := t.dial(conn.PeerID, conn.Config)
		if err != nil {
			state.finish(false)
			t.sink.ConnectionError(lifecycle.ConnectionEvent{ConnectionID: conn.ID, PeerID: conn.PeerID, Protocol: string(conn.Protocol), At: time.Now(), Err: err})
			continue
		}
		conn.rebind(newHandle)
		state.finish(true)
		t.sink.ConnectionEstablished(lifecycle.ConnectionEvent{ConnectionID: conn.ID, PeerID: conn.PeerID, Protocol: string(conn.Protocol), At: time.Now()})
	}
}

// Disconnect closes every connection pooled for peerID.
func (t *Transport) Disconnect(peerID string) {
	for _, c := range t.pool.ByPeer(peerID) {
		t.closeConnection(c)
	}
	t.mu.Lock()
	delete(t.peers, peerID)
	t.mu.Unlock()
}

// SendRequest routes a JSON-RPC request to peerID over any of its pooled
// connections, waits for a correlated response, and records send latency
// (spec section 4.A "sendRequest"). A retryable send failure is retried up
// to the peer's configured maxRetries with exponential backoff
// (baseDelay·2^(attempt-1)); each attempt re-picks a connection through
// the peer's round-robin balancer, so it goes to the next connected
// connection (the same one when the peer has only one) and skips any that
// is no longer connected (spec section 4.A "send path - retry").
func (t *Transport) SendRequest(ctx context.Context, peerID, method string, params valuetype.Value, timeout time.Duration) (Message, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		conn, err := t.pickConnection(peerID)
		if err != nil {
			return Message{}, err
		}

		maxRetries := conn.Config.maxRetriesOrDefault()
		if attempt > 0 {
			baseDelay := conn.Config.baseDelayOrDefault()
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return Message{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		handle := conn.currentHandle()
		if handle == nil {
			lastErr = errConnectionNotReady
		} else {
			req := NewRequest(t.cfg.NodeID, peerID, method, params, NewStringID(uuid.NewString()))
			start := time.Now()
			resp, sendErr := handle.send(req, timeout)
			t.metrics.ObserveSend(string(conn.Protocol), time.Since(start))

			if sendErr == nil {
				conn.recordSent(len(method))
				conn.recordReceived(0)
				t.metrics.MessagesSent.WithLabelValues(string(conn.Protocol), string(TypeRequest)).Inc()
				t.metrics.MessagesReceived.WithLabelValues(string(conn.Protocol), string(resp.MessageType)).Inc()
				return resp, nil
			}

			conn.recordError()
			t.metrics.TransportErrors.WithLabelValues(string(conn.Protocol), "send").Inc()
			lastErr = sendErr
		}

		if attempt >= maxRetries || !aerrors.IsRetryable(lastErr) {
			return Message{}, lastErr
		}
	}
}

// SendNotification fires a one-way message to peerID with no response
// expected (spec section 4.A "sendNotification").
func (t *Transport) SendNotification(peerID, method string, params valuetype.Value) error {
	conn, err := t.pickConnection(peerID)
	if err != nil {
		return err
	}
	handle := conn.currentHandle()
	if handle == nil {
		return errConnectionNotReady
	}
	msg := NewNotification(t.cfg.NodeID, peerID, method, params)
	if err := handle.notify(msg); err != nil {
		conn.recordError()
		return err
	}
	conn.recordSent(len(method))
	t.metrics.MessagesSent.WithLabelValues(string(conn.Protocol), string(TypeNotification)).Inc()
	return nil
}

// Broadcast fans a notification out to every connected peer (spec section
// 4.A "broadcast").
func (t *Transport) Broadcast(method string, params valuetype.Value) BroadcastResult {
	msg := NewNotification(t.cfg.NodeID, BroadcastPeer, method, params)
	timeout := t.cfg.SendTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return broadcast(t.pool, msg, timeout, t.logger)
}

// pickConnection returns a healthy pooled connection for peerID, round-robin
// balanced across the per-peer pool via a health.LoadBalancer (spec section
// 3, pool sizing). An unknown or disconnected peer is a routing_error (spec
// section 8 "sendMessage to an unknown or disconnected connection rejects
// with routing_error"), not agent_unavailable.
func (t *Transport) pickConnection(peerID string) (*Connection, error) {
	conns := t.pool.ByPeer(peerID)
	if len(conns) == 0 {
		return nil, aerrors.New(aerrors.TypeRouting, "transport", "no connections for peer "+peerID)
	}

	byID := make(map[string]*Connection, len(conns))
	instances := make([]health.Instance, 0, len(conns))
	for _, c := range conns {
		c := c
		byID[c.ID] = c
		instances = append(instances, health.Instance{
			ID:      c.ID,
			Healthy: func() bool { return c.State() == StateConnected },
		})
	}

	lb := t.loadBalancerFor(peerID, instances)
	inst, err := lb.Next()
	if err != nil {
		return nil, aerrors.New(aerrors.TypeRouting, "transport", "no connected connections for peer "+peerID)
	}
	return byID[inst.ID], nil
}

// loadBalancerFor returns the per-peer round-robin balancer, creating it on
// first use and refreshing its instance list on every call so it always
// reflects the pool's current membership.
func (t *Transport) loadBalancerFor(peerID string, instances []health.Instance) *health.LoadBalancer {
	t.lbMu.Lock()
	defer t.lbMu.Unlock()
	lb, ok := t.loadBalancers[peerID]
	if !ok {
		lb = health.NewLoadBalancer(instances)
		t.loadBalancers[peerID] = lb
		return lb
	}
	lb.SetInstances(instances)
	return lb
}

// ConnectionsByPeer returns a snapshot of every pooled connection for
// peerID (spec section 4.A "getConnectionsByPeer").
func (t *Transport) ConnectionsByPeer(peerID string) []*Connection {
	return t.pool.ByPeer(peerID)
}

// PoolSize reports the total number of pooled connections.
func (t *Transport) PoolSize() int { return t.pool.Len() }

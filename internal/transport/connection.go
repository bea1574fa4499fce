package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/PayRpc/a2a-fabric/internal/config"
	"github.com/google/uuid"
)

// ConnState is a connection's position in the lifecycle state machine
// (spec section 4.A): connecting -> connected -> (reconnecting <->
// connected)* -> closed.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// protoConn is the minimal behavior every protocol adapter (websocket,
// http2, grpc, framed-tcp) must provide. The Pool and reconnection logic
// operate purely against this interface, never against a concrete
// protocol type.
type protoConn interface {
	// send writes a message and returns the correlated response, or an
	// error if timeout elapses first.
	send(m Message, timeout time.Duration) (Message, error)
	// notify writes a message with no response expected.
	notify(m Message) error
	// healthy reports whether the underlying socket/session looks usable.
	healthy() bool
	// close tears down the underlying socket/session.
	close() error
}

// Connection is a live protocol-level channel to a peer (spec section 3).
type Connection struct {
	ID       string
	Protocol config.ProtocolKind
	PeerID   string
	Config   PeerConfig

	mu            sync.RWMutex
	state         ConnState
	lastActivity  int64 // UnixNano, monotonically non-decreasing per spec section 8
	bytesSent     int64
	bytesReceived int64
	messagesSent  int64
	messagesRecv  int64
	errorCount    int64

	handle protoConn

	reconnect reconnectState
}

// newConnection wraps a freshly dialed protoConn.
func newConnection(peerID string, cfg PeerConfig, handle protoConn) *Connection {
	return &Connection{
		ID:           uuid.NewString(),
		Protocol:     cfg.Protocol,
		PeerID:       peerID,
		Config:       cfg,
		state:        StateConnecting,
		lastActivity: time.Now().UnixNano(),
		handle:       handle,
	}
}

func (c *Connection) markConnected() {
	c.mu.Lock()
	c.state = StateConnected
	c.mu.Unlock()
	c.touch()
}

func (c *Connection) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connection) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// touch bumps lastActivity to now; spec section 8 requires this be
// monotonically non-decreasing, so a CAS loop guards against a stale
// writer racing a newer one.
func (c *Connection) touch() {
	now := time.Now().UnixNano()
	for {
		prev := atomic.LoadInt64(&c.lastActivity)
		if now <= prev {
			return
		}
		if atomic.CompareAndSwapInt64(&c.lastActivity, prev, now) {
			return
		}
	}
}

func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, atomic.LoadInt64(&c.lastActivity))
}

func (c *Connection) Connected() bool {
	return c.State() == StateConnected
}

func (c *Connection) recordSent(n int) {
	atomic.AddInt64(&c.bytesSent, int64(n))
	atomic.AddInt64(&c.messagesSent, 1)
	c.touch()
}

func (c *Connection) recordReceived(n int) {
	atomic.AddInt64(&c.bytesReceived, int64(n))
	atomic.AddInt64(&c.messagesRecv, 1)
	c.touch()
}

func (c *Connection) recordError() {
	atomic.AddInt64(&c.errorCount, 1)
}

// Stats is a point-in-time snapshot of a connection's counters.
type Stats struct {
	BytesSent     int64
	BytesReceived int64
	MessagesSent  int64
	MessagesRecv  int64
	Errors        int64
}

func (c *Connection) Stats() Stats {
	return Stats{
		BytesSent:     atomic.LoadInt64(&c.bytesSent),
		BytesReceived: atomic.LoadInt64(&c.bytesReceived),
		MessagesSent:  atomic.LoadInt64(&c.messagesSent),
		MessagesRecv:  atomic.LoadInt64(&c.messagesRecv),
		Errors:        atomic.LoadInt64(&c.errorCount),
	}
}

// rebind swaps the underlying handle after a reconnection, so outstanding
// holders of this *Connection observe continuity (spec section 4.A).
func (c *Connection) rebind(handle protoConn) {
	c.mu.Lock()
	old := c.handle
	c.handle = handle
	c.state = StateConnected
	c.mu.Unlock()
	if old != nil {
		_ = old.close()
	}
	c.touch()
}

func (c *Connection) currentHandle() protoConn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handle
}

// wsConn is grounded on the teacher's go.mod gorilla/websocket dependency
// and the secure-handshake connect pattern in internal/p2p/handshake.go,
// generalized from a Bitcoin peer handshake to the spec's plain/TLS dial,
// with an optional bearer token sent as the Authorization header of the
// upgrade request (spec section 6, "WebSocket transport").
package transport

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"time"

	aerrors "github.com/PayRpc/a2a-fabric/internal/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type wsConn struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu  sync.Mutex
	listener *listenerTable
	done     chan struct{}
	closed   bool
	closeMu  sync.Mutex
}

func dialWebSocket(peerID string, cfg PeerConfig, logger *zap.Logger, onMessage func(Message)) (*wsConn, error) {
	scheme := "ws"
	dialer := websocket.DefaultDialer
	if cfg.TLS != nil {
		scheme = "wss"
		tlsCfg := &tls.Config{InsecureSkipVerify: !cfg.TLS.Verify}
		dialer = &websocket.Dialer{TLSClientConfig: tlsCfg, HandshakeTimeout: cfg.connectTimeoutOrDefault()}
	}
	u := url.URL{Scheme: scheme, Host: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Path: cfg.pathOrDefault()}

	header := make(map[string][]string)
	if cfg.Auth == AuthBearerToken && cfg.BearerToken != "" {
		header["Authorization"] = []string{"Bearer " + cfg.BearerToken}
	}

	c, _, err := dialer.Dial(u.String(), header)
	if err != nil {
		return nil, aerrors.Wrap(aerrors.TypeRouting, "transport.websocket", "dial failed", err)
	}

	wc := &wsConn{
		conn:     c,
		logger:   logger,
		listener: newListenerTable(),
		done:     make(chan struct{}),
	}
	go wc.readLoop(onMessage)
	return wc, nil
}

func (w *wsConn) readLoop(onMessage func(Message)) {
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			w.logger.Debug("websocket read loop ended", zap.Error(err))
			close(w.done)
			return
		}
		m, err := Unmarshal(data)
		if err != nil {
			w.logger.Warn("dropping malformed websocket frame", zap.Error(err))
			continue
		}
		// An unsolicited ping is answered with a pong without application
		// involvement (spec section 4.A receive path).
		if m.Method == "ping" && m.MessageType == TypeHeartbeat {
			pong := NewNotification(m.To, m.From, "pong", m.Params)
			_ = w.notify(pong)
			continue
		}
		if !m.ID.IsNull() && w.listener.deliver(m.ID.String(), m) {
			continue
		}
		onMessage(m)
	}
}

func (w *wsConn) send(m Message, timeout time.Duration) (Message, error) {
	ch := w.listener.register(m.ID.String())
	defer w.listener.remove(m.ID.String())

	if err := w.writeJSON(m); err != nil {
		return Message{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(timeout):
		return Message{}, aerrors.New(aerrors.TypeTimeout, "transport.websocket", "timed out awaiting response")
	case <-w.done:
		return Message{}, aerrors.New(aerrors.TypeAgentUnavailable, "transport.websocket", "connection closed while awaiting response")
	}
}

func (w *wsConn) notify(m Message) error {
	return w.writeJSON(m)
}

func (w *wsConn) writeJSON(m Message) error {
	data, err := m.Marshal()
	if err != nil {
		return aerrors.Wrap(aerrors.TypeSerialization, "transport.websocket", "marshal failed", err)
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return aerrors.Wrap(aerrors.TypeRouting, "transport.websocket", "write failed", err).WithRetryable(true)
	}
	return nil
}

func (w *wsConn) healthy() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w *wsConn) close() error {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return w.conn.Close()
}

// tcpConn implements the "framed-tcp" protocol kind: a raw net.Conn (or
// crypto/tls.Conn) carrying length-prefixed binary frames, each wrapping one
// JSON-RPC message. Grounded on the teacher's raw socket dial/handshake in
// internal/p2p/direct.go, generalized from the Bitcoin wire protocol to the
// fabric's BinaryFrame (frame.go).
package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	aerrors "github.com/PayRpc/a2a-fabric/internal/errors"
)

type tcpConn struct {
	conn     net.Conn
	reader   *frameReader
	writeMu  sync.Mutex
	listener *listenerTable
	done     chan struct{}
	closed   bool
	closeMu  sync.Mutex
}

func dialTCP(peerID string, cfg PeerConfig, onMessage func(Message)) (*tcpConn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dialer := &net.Dialer{Timeout: cfg.connectTimeoutOrDefault()}

	var conn net.Conn
	var err error
	if cfg.TLS != nil {
		tlsCfg := &tls.Config{InsecureSkipVerify: !cfg.TLS.Verify}
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, aerrors.Wrap(aerrors.TypeRouting, "transport.tcp", "dial failed", err)
	}

	tc := &tcpConn{
		conn:     conn,
		reader:   newFrameReader(conn),
		listener: newListenerTable(),
		done:     make(chan struct{}),
	}
	go tc.readLoop(onMessage)
	return tc, nil
}

func (t *tcpConn) readLoop(onMessage func(Message)) {
	for {
		frame, err := t.reader.ReadFrame()
		if err != nil {
			close(t.done)
			return
		}
		switch frame.Type {
		case FramePing:
			_ = t.writeFrame(BinaryFrame{Version: FrameVersion, Type: FramePong})
			continue
		case FramePong:
			continue
		}

		m, err := Unmarshal(frame.Payload)
		if err != nil {
			continue
		}
		if !m.ID.IsNull() && t.listener.deliver(m.ID.String(), m) {
			continue
		}
		onMessage(m)
	}
}

func (t *tcpConn) send(m Message, timeout time.Duration) (Message, error) {
	ch := t.listener.register(m.ID.String())
	defer t.listener.remove(m.ID.String())

	if err := t.writeMessage(m, FrameMessage); err != nil {
		return Message{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(timeout):
		return Message{}, aerrors.New(aerrors.TypeTimeout, "transport.tcp", "timed out awaiting response")
	case <-t.done:
		return Message{}, aerrors.New(aerrors.TypeAgentUnavailable, "transport.tcp", "connection closed while awaiting response")
	}
}

func (t *tcpConn) notify(m Message) error {
	return t.writeMessage(m, FrameNotification)
}

func (t *tcpConn) writeMessage(m Message, ft FrameType) error {
	payload, err := m.Marshal()
	if err != nil {
		return aerrors.Wrap(aerrors.TypeSerialization, "transport.tcp", "marshal failed", err)
	}
	return t.writeFrame(BinaryFrame{Version: FrameVersion, Type: ft, Payload: payload})
}

func (t *tcpConn) writeFrame(f BinaryFrame) error {
	buf := EncodeFrame(f)
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write(buf); err != nil {
		return aerrors.Wrap(aerrors.TypeRouting, "transport.tcp", "write failed", err).WithRetryable(true)
	}
	return nil
}

func (t *tcpConn) healthy() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

func (t *tcpConn) close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

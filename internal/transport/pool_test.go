package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	healthyV bool
	closed   bool
}

func (f *fakeConn) send(m Message, timeout time.Duration) (Message, error) { return Message{}, nil }
func (f *fakeConn) notify(m Message) error                                 { return nil }
func (f *fakeConn) healthy() bool                                          { return f.healthyV }
func (f *fakeConn) close() error                                           { f.closed = true; return nil }

func newTestConnection(peerID string) *Connection {
	return newConnection(peerID, PeerConfig{Host: "localhost", Port: 9000}, &fakeConn{healthyV: true})
}

func TestPool_AddEnforcesPerPeerCap(t *testing.T) {
	p := NewPool(2, 100)

	require.NoError(t, p.Add(newTestConnection("peer-a")))
	require.NoError(t, p.Add(newTestConnection("peer-a")))

	err := p.Add(newTestConnection("peer-a"))
	assert.Error(t, err)
	assert.True(t, p.checkConsistency())
}

func TestPool_AddEnforcesTotalCap(t *testing.T) {
	p := NewPool(10, 2)

	require.NoError(t, p.Add(newTestConnection("peer-a")))
	require.NoError(t, p.Add(newTestConnection("peer-b")))

	err := p.Add(newTestConnection("peer-c"))
	assert.Error(t, err)
}

func TestPool_RemoveKeepsIndexConsistent(t *testing.T) {
	p := NewPool(5, 100)
	c1 := newTestConnection("peer-a")
	c2 := newTestConnection("peer-a")
	require.NoError(t, p.Add(c1))
	require.NoError(t, p.Add(c2))

	p.Remove(c1.ID)

	assert.True(t, p.checkConsistency())
	assert.Len(t, p.ByPeer("peer-a"), 1)
	assert.Equal(t, 1, p.Len())

	p.Remove(c2.ID)
	assert.True(t, p.checkConsistency())
	assert.Empty(t, p.ByPeer("peer-a"))
}

func TestPool_ByPeerReturnsIndependentSnapshot(t *testing.T) {
	p := NewPool(5, 100)
	require.NoError(t, p.Add(newTestConnection("peer-a")))
	require.NoError(t, p.Add(newTestConnection("peer-b")))

	snap := p.Snapshot()
	assert.Len(t, snap, 2)

	p.Remove(snap[0].ID)
	assert.Len(t, snap, 2, "mutating the pool must not retroactively shrink an already-returned snapshot")
}

func TestConnection_TouchIsMonotonic(t *testing.T) {
	c := newTestConnection("peer-a")
	first := c.LastActivity()

	c.touch()
	second := c.LastActivity()
	assert.False(t, second.Before(first))

	// A future lastActivity (e.g. a touch from a connection that was
	// briefly rebound to a clock-skewed handle) must never be rolled back
	// by a later touch() observing an earlier wall-clock time.
	future := time.Now().Add(time.Hour).UnixNano()
	c.lastActivity = future
	c.touch()
	assert.Equal(t, future, c.lastActivity)
}

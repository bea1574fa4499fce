// Pool is directly adapted from the teacher's per-peer connection
// management (internal/p2p/p2p.go: peers []*peer.Peer guarded by a
// sync.RWMutex plus an atomic active count) and the other_examples network
// manager's per-endpoint pooling, generalized from a single peer slice
// into a primary map + peer index (spec section 3).
package transport

import (
	aerrors "github.com/PayRpc/a2a-fabric/internal/errors"
	"sync"
)

// DefaultMaxPerPeer and DefaultMaxTotal are the pool's default caps (spec
// section 3).
const (
	DefaultMaxPerPeer = 5
	DefaultMaxTotal   = 1000
)

// Pool is the connection pool: a map of connection id -> *Connection, plus
// an index from peer id -> set of connection ids. The two are kept
// consistent at every observable boundary (spec section 3 invariant).
type Pool struct {
	mu         sync.RWMutex
	byID       map[string]*Connection
	byPeer     map[string]map[string]struct{}
	maxPerPeer int
	maxTotal   int
}

func NewPool(maxPerPeer, maxTotal int) *Pool {
	if maxPerPeer <= 0 {
		maxPerPeer = DefaultMaxPerPeer
	}
	if maxTotal <= 0 {
		maxTotal = DefaultMaxTotal
	}
	return &Pool{
		byID:       make(map[string]*Connection),
		byPeer:     make(map[string]map[string]struct{}),
		maxPerPeer: maxPerPeer,
		maxTotal:   maxTotal,
	}
}

// Add inserts a connection, rejecting with resource_exhausted if either
// cap would be exceeded (spec section 8 boundary behavior).
func (p *Pool) Add(c *Connection) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.byID) >= p.maxTotal {
		return aerrors.New(aerrors.TypeResourceExhausted, "transport.pool", "total connection cap reached")
	}
	peerConns := p.byPeer[c.PeerID]
	if len(peerConns) >= p.maxPerPeer {
		return aerrors.New(aerrors.TypeResourceExhausted, "transport.pool", "per-peer connection cap reached")
	}

	p.byID[c.ID] = c
	if peerConns == nil {
		peerConns = make(map[string]struct{})
		p.byPeer[c.PeerID] = peerConns
	}
	peerConns[c.ID] = struct{}{}
	return nil
}

// Remove deletes a connection from both the primary map and the peer
// index atomically.
func (p *Pool) Remove(connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.byID[connID]
	if !ok {
		return
	}
	delete(p.byID, connID)
	if peerConns, ok := p.byPeer[c.PeerID]; ok {
		delete(peerConns, connID)
		if len(peerConns) == 0 {
			delete(p.byPeer, c.PeerID)
		}
	}
}

// Get returns a connection by id.
func (p *Pool) Get(connID string) (*Connection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.byID[connID]
	return c, ok
}

// ByPeer returns a snapshot of connections for a peer id, never holding
// the lock across the caller's use of the slice (spec section 5 shared-
// resource policy).
func (p *Pool) ByPeer(peerID string) []*Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := p.byPeer[peerID]
	out := make([]*Connection, 0, len(ids))
	for id := range ids {
		if c, ok := p.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Snapshot returns every connection currently pooled, as a slice, so
// callers never iterate while holding the pool's lock.
func (p *Pool) Snapshot() []*Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Connection, 0, len(p.byID))
	for _, c := range p.byID {
		out = append(out, c)
	}
	return out
}

// Len reports the total number of pooled connections.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byID)
}

// checkConsistency verifies the spec section 8 invariant that the index
// and primary map agree; used by tests.
func (p *Pool) checkConsistency() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	seen := 0
	for peer, ids := range p.byPeer {
		for id := range ids {
			c, ok := p.byID[id]
			if !ok || c.PeerID != peer {
				return false
			}
			seen++
		}
	}
	return seen == len(p.byID)
}

// broadcast fans a single message out to every live connection in the pool,
// adapted from the teacher's internal/broadcaster/broadcaster.go tier-aware
// publish loop: best-effort per-recipient delivery that never lets one slow
// or dead peer block the others, with delivered/skipped counters surfacing
// through the same kind of summary the teacher logs on a slow broadcast.
package transport

import (
	"time"

	aerrors "github.com/PayRpc/a2a-fabric/internal/errors"
	"go.uber.org/zap"
)

// BroadcastResult summarizes a fan-out to every connected peer (spec
// section 4.A "broadcast").
type BroadcastResult struct {
	Delivered int
	Failed    int
	Errors    map[string]error // peer id -> error, only for failures
	Elapsed   time.Duration
}

// broadcast sends m to one connection per distinct peer in the pool. A
// peer that errors or times out is recorded in Errors but never stops the
// fan-out to the rest (spec section 4.A: "a broadcast MUST NOT fail as a
// whole because one recipient is unreachable").
func broadcast(pool *Pool, m Message, perPeerTimeout time.Duration, logger *zap.Logger) BroadcastResult {
	start := time.Now()
	result := BroadcastResult{Errors: make(map[string]error)}

	seen := make(map[string]*Connection)
	for _, c := range pool.Snapshot() {
		if _, ok := seen[c.PeerID]; ok {
			continue
		}
		if c.Connected() {
			seen[c.PeerID] = c
		}
	}

	type outcome struct {
		peerID string
		err    error
	}
	out := make(chan outcome, len(seen))

	for peerID, conn := range seen {
		go func(peerID string, conn *Connection) {
			handle := conn.currentHandle()
			if handle == nil {
				out <- outcome{peerID, errConnectionNotReady}
				return
			}
			msg := m
			msg.To = peerID
			done := make(chan error, 1)
			go func() { done <- handle.notify(msg) }()
			select {
			case err := <-done:
				out <- outcome{peerID, err}
			case <-time.After(perPeerTimeout):
				out <- outcome{peerID, aerrors.New(aerrors.TypeTimeout, "transport.broadcast", "timed out delivering to peer")}
			}
		}(peerID, conn)
	}

	for i := 0; i < len(seen); i++ {
		o := <-out
		if o.err != nil {
			result.Failed++
			result.Errors[o.peerID] = o.err
		} else {
			result.Delivered++
		}
	}

	result.Elapsed = time.Since(start)
	if result.Elapsed > 50*time.Millisecond {
		logger.Warn("slow broadcast",
			zap.Duration("elapsed", result.Elapsed),
			zap.Int("delivered", result.Delivered),
			zap.Int("failed", result.Failed),
		)
	} else {
		logger.Debug("broadcast completed",
			zap.Duration("elapsed", result.Elapsed),
			zap.Int("delivered", result.Delivered),
			zap.Int("failed", result.Failed),
		)
	}
	return result
}

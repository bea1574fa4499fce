package health

import (
	"sync"
	"time"

	aerrors "github.com/PayRpc/a2a-fabric/internal/errors"
	"github.com/PayRpc/a2a-fabric/internal/valuetype"
)

// Invocation is a single queued call awaiting a batch flush.
type Invocation struct {
	ID      string
	Payload valuetype.Value
}

// Result pairs an invocation id with its outcome, so callers waiting on a
// batched invocation can match responses back to requests (spec section
// 4.D: "all requests in the batch receive responses keyed by their
// original ids").
type Result struct {
	ID    string
	Value valuetype.Value
	Err   error
}

// FlushFunc executes an entire batch at once and returns one Result per
// Invocation, in any order.
type FlushFunc func(batch []Invocation) []Result

// Batcher collects invocations for a single tool and flushes them as one
// unit when batchSize is reached or maxWaitTime elapses since the first
// invocation queued in the current batch, whichever comes first.
type Batcher struct {
	mu sync.Mutex

	batchSize   int
	maxWaitTime time.Duration
	flush       FlushFunc

	pending []Invocation
	waiters map[string]chan Result
	timer   *time.Timer
}

// NewBatcher constructs a batcher that calls flush once a batch is ready.
func NewBatcher(batchSize int, maxWaitTime time.Duration, flush FlushFunc) *Batcher {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Batcher{
		batchSize:   batchSize,
		maxWaitTime: maxWaitTime,
		flush:       flush,
		waiters:     make(map[string]chan Result),
	}
}

// Submit enqueues inv and blocks until its batch has been flushed and its
// result is available.
func (b *Batcher) Submit(inv Invocation) Result {
	ch := make(chan Result, 1)

	b.mu.Lock()
	b.pending = append(b.pending, inv)
	b.waiters[inv.ID] = ch
	shouldFlush := len(b.pending) >= b.batchSize
	if len(b.pending) == 1 && !shouldFlush {
		b.timer = time.AfterFunc(b.maxWaitTime, b.flushNow)
	}
	b.mu.Unlock()

	if shouldFlush {
		b.flushNow()
	}

	return <-ch
}

func (b *Batcher) flushNow() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	waiters := b.waiters
	b.pending = nil
	b.waiters = make(map[string]chan Result)
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	results := b.flush(batch)
	delivered := make(map[string]bool, len(results))
	for _, r := range results {
		if ch, ok := waiters[r.ID]; ok {
			ch <- r
			delivered[r.ID] = true
		}
	}
	for id, ch := range waiters {
		if !delivered[id] {
			ch <- Result{ID: id, Err: aerrors.New(aerrors.TypeInternal, "health.batcher", "batch flush produced no result for invocation "+id)}
		}
	}
}

package core

import (
	"context"
	"sync"

	"github.com/gammazero/deque"

	"github.com/driftchat/drift-server/internal/proto"
)

// Outbox is the unbounded multi-producer/single-consumer frame queue owned by
// one session. Any goroutine holding a handle may Push without blocking; only
// the owning session's write loop drains it. There is no backpressure: a
// permanently stalled consumer grows the queue until memory runs out, an
// accepted trade-off that keeps broadcast fan-out from ever blocking on a
// slow peer.
type Outbox struct {
	mu     sync.Mutex
	frames deque.Deque[*proto.Frame]
	ready  chan struct{}
	closed bool
}

// NewOutbox returns an empty, open outbox.
func NewOutbox() *Outbox {
	return &Outbox{ready: make(chan struct{}, 1)}
}

// Push enqueues f. It never blocks. Frames pushed after Close are dropped.
func (o *Outbox) Push(f *proto.Frame) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.frames.PushBack(f)
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
}

// Receive blocks until a frame is available, the outbox is closed and
// drained (ErrOutboxClosed), or ctx is done.
func (o *Outbox) Receive(ctx context.Context) (*proto.Frame, error) {
	for {
		o.mu.Lock()
		if o.frames.Len() > 0 {
			f := o.frames.PopFront()
			o.mu.Unlock()
			return f, nil
		}
		closed := o.closed
		o.mu.Unlock()

		if closed {
			return nil, ErrOutboxClosed
		}

		select {
		case <-o.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len reports the number of queued frames.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.frames.Len()
}

// Close marks the outbox closed and wakes the consumer. Idempotent.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
}
